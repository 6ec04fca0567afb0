package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeVideo()
	c.normalizeThumbnail()
	c.normalizeOutput()
	c.normalizeDetectors()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		c.Paths.WatchDir = defaultWatchDir
	}
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	protocol := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.trigger", &c.Paths.Trigger, defaultTriggerName},
		{"paths.image", &c.Paths.Image, defaultImageName},
		{"paths.video", &c.Paths.Video, defaultVideoName},
		{"paths.output", &c.Paths.Output, defaultOutputName},
		{"paths.thumbnail", &c.Paths.Thumbnail, defaultThumbnailName},
	}
	for _, entry := range protocol {
		if *entry.value, err = c.resolveProtocolPath(*entry.value, entry.fallback); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}

	// Staging defaults to a sibling of the output so rename stays on one filesystem.
	if strings.TrimSpace(c.Paths.Staging) == "" {
		c.Paths.Staging = filepath.Join(filepath.Dir(c.Paths.Output), defaultStagingName)
	} else if c.Paths.Staging, err = c.resolveProtocolPath(c.Paths.Staging, defaultStagingName); err != nil {
		return fmt.Errorf("paths.staging: %w", err)
	}
	return nil
}

// resolveProtocolPath joins bare names onto the watch directory and expands
// everything else with the repository path rules.
func (c *Config) resolveProtocolPath(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if strings.HasPrefix(value, "~") || filepath.IsAbs(value) {
		return expandPath(value)
	}
	return filepath.Join(c.Paths.WatchDir, value), nil
}

func (c *Config) normalizeVideo() {
	c.Video.FFmpegBinary = strings.TrimSpace(c.Video.FFmpegBinary)
	if c.Video.FFmpegBinary == "" {
		c.Video.FFmpegBinary = "ffmpeg"
	}
	c.Video.FFprobeBinary = strings.TrimSpace(c.Video.FFprobeBinary)
	if c.Video.FFprobeBinary == "" {
		c.Video.FFprobeBinary = "ffprobe"
	}
	if c.Video.DecodeTimeoutSeconds <= 0 {
		c.Video.DecodeTimeoutSeconds = defaultDecodeTimeout
	}
}

func (c *Config) normalizeThumbnail() {
	if c.Thumbnail.Quality <= 0 {
		c.Thumbnail.Quality = defaultThumbnailQuality
	}
	if c.Thumbnail.MaxWidth < 0 {
		c.Thumbnail.MaxWidth = 0
	}
}

func (c *Config) normalizeOutput() {
	c.Output.Coordinates = strings.ToLower(strings.TrimSpace(c.Output.Coordinates))
	if c.Output.Coordinates == "" {
		c.Output.Coordinates = defaultCoordinateFormat
	}
}

func (c *Config) normalizeDetectors() {
	for i := range c.Detectors {
		d := &c.Detectors[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Command = strings.TrimSpace(d.Command)
		d.Trigger = strings.ToLower(strings.TrimSpace(d.Trigger))
		if d.Trigger == "" {
			if i == 0 {
				d.Trigger = TriggerAlways
			} else {
				d.Trigger = TriggerIfPrimaryNonEmpty
			}
		}
		if d.Threshold == 0 {
			d.Threshold = defaultDetectorThreshold
		}
		if d.MaxBoxes == 0 {
			d.MaxBoxes = defaultDetectorMaxBoxes
		}
		if d.TimeoutSeconds <= 0 {
			d.TimeoutSeconds = defaultDetectorTimeout
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
