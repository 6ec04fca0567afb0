package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the file protocol locations and the daemon's own directories.
// Protocol names without a directory component resolve against WatchDir.
type Paths struct {
	WatchDir  string `toml:"watch_dir"`
	Trigger   string `toml:"trigger"`
	Image     string `toml:"image"`
	Video     string `toml:"video"`
	Output    string `toml:"output"`
	Staging   string `toml:"staging"`
	Thumbnail string `toml:"thumbnail"`
	LogDir    string `toml:"log_dir"`
}

// Watch controls how the trigger marker is observed.
type Watch struct {
	PollIntervalMS int  `toml:"poll_interval_ms"`
	Notify         bool `toml:"notify"`
}

// Video contains decode and sampling settings for video jobs.
type Video struct {
	Enabled              bool   `toml:"enabled"`
	ExpectedWidth        int    `toml:"expected_width"`
	ExpectedHeight       int    `toml:"expected_height"`
	SampleStride         int    `toml:"sample_stride"`
	ThumbnailFrame       int    `toml:"thumbnail_frame"`
	DecodeTimeoutSeconds int    `toml:"decode_timeout_seconds"`
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	FFprobeBinary        string `toml:"ffprobe_binary"`
}

// Thumbnail controls the per-job preview image.
type Thumbnail struct {
	Enabled  bool `toml:"enabled"`
	MaxWidth int  `toml:"max_width"`
	Quality  int  `toml:"quality"`
}

// Output controls how the result log is rendered.
type Output struct {
	Coordinates string `toml:"coordinates"`
	SkipEmpty   bool   `toml:"skip_empty"`
}

// Detector describes one detection stage. The first entry is the primary.
type Detector struct {
	Name           string   `toml:"name"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Threshold      float64  `toml:"threshold"`
	MaxBoxes       int      `toml:"max_boxes"`
	Trigger        string   `toml:"trigger"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for detectd.
//
// Configuration sections by subsystem:
//   - Paths: protocol files and daemon directories
//   - Watch: marker polling cadence
//   - Video: decode, resolution and sampling
//   - Thumbnail: preview output
//   - Output: result rendering
//   - Detectors: ordered detection stages
//   - Logging: log format, level and rotation
type Config struct {
	Paths     Paths      `toml:"paths"`
	Watch     Watch      `toml:"watch"`
	Video     Video      `toml:"video"`
	Thumbnail Thumbnail  `toml:"thumbnail"`
	Output    Output     `toml:"output"`
	Detectors []Detector `toml:"detectors"`
	Logging   Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		// Any [[detectors]] in the file replace the defaults wholesale.
		fileCfg := cfg
		fileCfg.Detectors = nil
		if err := decoder.Decode(&fileCfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(fileCfg.Detectors) == 0 {
			fileCfg.Detectors = cfg.Detectors
		}
		cfg = fileCfg
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("detectd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchDir, c.Paths.LogDir, filepath.Dir(c.Paths.Output)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Thumbnail.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Paths.Thumbnail), 0o755); err != nil {
			return fmt.Errorf("create thumbnail directory: %w", err)
		}
	}
	return nil
}

// PollInterval returns the marker polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalMS) * time.Millisecond
}

// DecodeTimeout bounds the time one job spends probing and decoding its media.
// Time spent in detectors is not counted.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Video.DecodeTimeoutSeconds) * time.Second
}

// Timeout bounds a single detector invocation.
func (d Detector) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "detectd.lock")
}

// PIDPath returns the pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "detectd.pid")
}

// LogPath returns the rotating log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "detectd.log")
}

// DetectorNames lists stage names in declaration order.
func (c *Config) DetectorNames() []string {
	names := make([]string, 0, len(c.Detectors))
	for _, d := range c.Detectors {
		names = append(names, d.Name)
	}
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
