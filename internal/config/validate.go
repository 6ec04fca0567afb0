package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if filepath.Dir(c.Paths.Staging) != filepath.Dir(c.Paths.Output) {
		return fmt.Errorf("paths.staging must be in the same directory as paths.output (%s)", filepath.Dir(c.Paths.Output))
	}
	seen := make(map[string]string, 6)
	for key, value := range map[string]string{
		"paths.trigger":   c.Paths.Trigger,
		"paths.image":     c.Paths.Image,
		"paths.video":     c.Paths.Video,
		"paths.output":    c.Paths.Output,
		"paths.staging":   c.Paths.Staging,
		"paths.thumbnail": c.Paths.Thumbnail,
	} {
		if other, exists := seen[value]; exists {
			first, second := other, key
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("%s and %s must not share a path (%s)", first, second, value)
		}
		seen[value] = key
	}
	return nil
}

func (c *Config) validateTiming() error {
	return ensurePositiveMap(map[string]int{
		"watch.poll_interval_ms":       c.Watch.PollIntervalMS,
		"video.decode_timeout_seconds": c.Video.DecodeTimeoutSeconds,
	})
}

func (c *Config) validateVideo() error {
	if !c.Video.Enabled {
		return nil
	}
	if err := ensurePositiveMap(map[string]int{
		"video.expected_width":  c.Video.ExpectedWidth,
		"video.expected_height": c.Video.ExpectedHeight,
		"video.sample_stride":   c.Video.SampleStride,
		"video.thumbnail_frame": c.Video.ThumbnailFrame,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Coordinates {
	case CoordinatesFloat, CoordinatesInt:
	default:
		return fmt.Errorf("output.coordinates must be %q or %q, got %q", CoordinatesFloat, CoordinatesInt, c.Output.Coordinates)
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return errors.New("thumbnail.quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateDetectors() error {
	if len(c.Detectors) == 0 {
		return errors.New("at least one [[detectors]] entry is required")
	}
	names := make(map[string]struct{}, len(c.Detectors))
	for i, d := range c.Detectors {
		key := fmt.Sprintf("detectors[%d]", i)
		if d.Name == "" {
			return fmt.Errorf("%s.name must be set", key)
		}
		if strings.ContainsAny(d.Name, ",\n") {
			return fmt.Errorf("%s.name %q must not contain commas or newlines", key, d.Name)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("%s.name %q is already used by another detector", key, d.Name)
		}
		names[d.Name] = struct{}{}
		if d.Command == "" {
			return fmt.Errorf("%s.command must be set", key)
		}
		if d.Threshold < 0 || d.Threshold > 1 {
			return fmt.Errorf("%s.threshold must be between 0 and 1", key)
		}
		if d.MaxBoxes < 1 {
			return fmt.Errorf("%s.max_boxes must be >= 1", key)
		}
		switch d.Trigger {
		case TriggerAlways, TriggerIfPrimaryNonEmpty, TriggerOncePerJobIfPrimary:
		default:
			return fmt.Errorf("%s.trigger %q is not one of %s, %s, %s", key, d.Trigger, TriggerAlways, TriggerIfPrimaryNonEmpty, TriggerOncePerJobIfPrimary)
		}
		if i == 0 && d.Trigger != TriggerAlways {
			return fmt.Errorf("detectors[0] is the primary detector and must use trigger %q", TriggerAlways)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
