package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"detectd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose protocol files live in a fresh temp
// directory. Detectors keep their default names and triggers.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	watch := filepath.Join(base, "watch")
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		WatchDir:  watch,
		Trigger:   filepath.Join(watch, "detect.start"),
		Image:     filepath.Join(watch, "detect.jpg"),
		Video:     filepath.Join(watch, "detect.mp4"),
		Output:    filepath.Join(watch, "detect.out"),
		Staging:   filepath.Join(watch, "detect.tmp"),
		Thumbnail: filepath.Join(watch, "detect.thumb.jpg"),
		LogDir:    filepath.Join(base, "logs"),
	}
	cfgVal.Watch.PollIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithResolution overrides the expected video frame size.
func WithResolution(width, height int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Video.ExpectedWidth = width
		b.cfg.Video.ExpectedHeight = height
	}
}

// WithStride overrides the video sample stride.
func WithStride(stride int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Video.SampleStride = stride
	}
}

// WithSkipEmpty toggles omission of frames without detections.
func WithSkipEmpty(skip bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.SkipEmpty = skip
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg, ffprobe and the default
// detector worker are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "detectnet-worker"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
