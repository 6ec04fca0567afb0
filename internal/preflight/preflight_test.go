package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"detectd/internal/config"
	"detectd/internal/services"
	"detectd/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAllPassesWithStubbedBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	results := RunAll(context.Background(), cfg)
	// watch dir, log dir, ffmpeg, ffprobe, one shared detector worker
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %#v", results)
	}
	if err := Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}
}

func TestRunAllSkipsVideoToolsWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("detectnet-worker"))
	cfg.Video.Enabled = false
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "FFmpeg" || r.Name == "FFprobe" {
			t.Fatalf("video tooling checked although disabled: %#v", r)
		}
	}
}

func TestRunAllReportsMissingDetector(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "ffprobe"))
	cfg.Detectors = []config.Detector{{Name: "ped", Command: "missing-detector-worker"}}

	err := Err(RunAll(context.Background(), cfg))
	if !errors.Is(err, services.ErrInitialization) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

func TestErrNilWhenAllPassed(t *testing.T) {
	if err := Err([]Result{{Name: "x", Passed: true}}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := Err(nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
