package daemonrun

import (
	"context"
	"errors"
	"image/color"
	"os"
	"strings"
	"testing"

	"detectd/internal/daemon"
	"detectd/internal/detect"
	"detectd/internal/frame"
	"detectd/internal/media"
	"detectd/internal/sentinel"
	"detectd/internal/services"
	"detectd/internal/testsupport"
)

type fakeDetector struct {
	name     string
	startErr error
	started  bool
	closed   bool
}

func (f *fakeDetector) Start(context.Context) error {
	f.started = true
	return f.startErr
}

func (f *fakeDetector) Model() string { return f.name + "net" }

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func (f *fakeDetector) Detect(context.Context, frame.Buffer, int) (detect.Set, error) {
	return detect.Set{Boxes: []detect.Box{{Left: 1, Top: 1, Right: 2, Bottom: 2, Score: 1}}}, nil
}

func withFakeDetectors(t *testing.T, failing string) map[string]*fakeDetector {
	t.Helper()
	created := map[string]*fakeDetector{}
	orig := newDetector
	newDetector = func(cfg detect.ProcessConfig) stageDetector {
		f := &fakeDetector{name: cfg.Name}
		if cfg.Name == failing {
			f.startErr = errors.New("model file missing")
		}
		created[cfg.Name] = f
		return f
	}
	t.Cleanup(func() { newDetector = orig })
	return created
}

func TestBuildWiresPipeline(t *testing.T) {
	created := withFakeDetectors(t, "")
	cfg := testsupport.NewConfig(t)

	var frames int
	p, err := Build(context.Background(), cfg, nil, BuildOptions{
		Source:  sentinel.NewQueue(1),
		OnFrame: func(daemon.Job, detect.FrameResult) { frames++ },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p.Orchestrator.Names(); len(got) != 2 || got[0] != "ped" || got[1] != "face" {
		t.Fatalf("unexpected stages %v", got)
	}
	for name, det := range created {
		if !det.started {
			t.Fatalf("detector %s not started", name)
		}
	}

	testsupport.WriteImage(t, cfg.Paths.Image, 4, 4, color.NRGBA{R: 200, A: 255})
	report, err := p.Daemon.ProcessJob(context.Background(), sentinel.Trigger{Path: cfg.Paths.Image, Kind: media.KindImage})
	if err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	out, err := os.ReadFile(cfg.Paths.Output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(out) != report.Output || string(out) != "1,ped,1,face,1,1,1,2,2,1,1,2,2\n" {
		t.Fatalf("unexpected output %q", out)
	}

	if frames != 1 {
		t.Fatalf("expected one observed frame, got %d", frames)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for name, det := range created {
		if !det.closed {
			t.Fatalf("detector %s not closed", name)
		}
	}
}

func TestBuildFailsWhenDetectorCannotStart(t *testing.T) {
	created := withFakeDetectors(t, "face")
	cfg := testsupport.NewConfig(t)

	_, err := Build(context.Background(), cfg, nil, BuildOptions{Source: sentinel.NewQueue(1)})
	if !errors.Is(err, services.ErrInitialization) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if services.Classify(err) != services.DispositionFatal {
		t.Fatal("detector start failure must be fatal")
	}
	if !created["ped"].closed {
		t.Fatal("already started detectors must be closed on failure")
	}
}

func TestWritePIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := writePIDFile(cfg.PIDPath()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 2 || data[len(data)-1] != '\n' {
		t.Fatalf("unexpected pid file %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}

func TestRunRefusedWhileAnotherInstanceHoldsTheLock(t *testing.T) {
	created := withFakeDetectors(t, "")
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	running, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer running.Release()
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err = Run(context.Background(), cfg, Options{})
	if !errors.Is(err, services.ErrInitialization) || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock refusal, got %v", err)
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("running instance's pid file removed: %v", err)
	}
	if string(data) != "4242\n" {
		t.Fatalf("running instance's pid file rewritten: %q", data)
	}
	if len(created) != 0 {
		t.Fatalf("refused instance started detectors: %v", created)
	}
}
