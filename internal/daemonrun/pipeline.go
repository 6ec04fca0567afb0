package daemonrun

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"

	"detectd/internal/config"
	"detectd/internal/daemon"
	"detectd/internal/detect"
	"detectd/internal/logging"
	"detectd/internal/media"
	"detectd/internal/publish"
	"detectd/internal/sentinel"
	"detectd/internal/services"
)

// stageDetector is a detector backed by a process that must be started and
// stopped.
type stageDetector interface {
	detect.Detector
	Start(ctx context.Context) error
	Model() string
	Close() error
}

// newDetector is replaced in tests.
var newDetector = func(cfg detect.ProcessConfig) stageDetector {
	return detect.NewProcessDetector(cfg)
}

// BuildOptions selects where triggers come from.
type BuildOptions struct {
	Source  sentinel.Source
	OnFrame func(daemon.Job, detect.FrameResult)
	// Lock is handed to the daemon when the caller already holds it.
	Lock *daemon.InstanceLock
}

// Pipeline is a fully wired daemon with the detector workers it owns.
type Pipeline struct {
	Daemon       *daemon.Daemon
	Orchestrator *detect.Orchestrator
	detectors    []stageDetector
}

// Build starts one worker per configured detector, waits for each to answer
// its handshake, and wires the job pipeline around them. A worker that fails
// to start is an initialization failure.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts BuildOptions) (*Pipeline, error) {
	p := &Pipeline{}
	startLog := logging.NewComponentLogger(logger, "startup")
	stages := make([]detect.Stage, 0, len(cfg.Detectors))
	for _, d := range cfg.Detectors {
		det := newDetector(detect.ProcessConfig{
			Name:      d.Name,
			Command:   d.Command,
			Args:      d.Args,
			Threshold: d.Threshold,
			Logger:    logger,
		})
		p.detectors = append(p.detectors, det)

		startCtx, cancel := ctx, context.CancelFunc(func() {})
		if d.Timeout() > 0 {
			startCtx, cancel = context.WithTimeout(ctx, d.Timeout())
		}
		err := det.Start(startCtx)
		cancel()
		if err != nil {
			_ = p.Close()
			return nil, services.Wrap(services.ErrInitialization, "startup", "detector "+d.Name, d.Command, err)
		}
		startLog.Info("detector ready",
			logging.String("stage", d.Name),
			logging.String("model", det.Model()),
			logging.String("trigger", d.Trigger),
		)
		stages = append(stages, detect.Stage{
			Name:      d.Name,
			Detector:  det,
			Trigger:   detect.Trigger(d.Trigger),
			MaxBoxes:  d.MaxBoxes,
			Threshold: d.Threshold,
			Timeout:   d.Timeout(),
		})
	}

	orch, err := detect.NewOrchestrator(stages, logger)
	if err != nil {
		_ = p.Close()
		return nil, services.Wrap(services.ErrConfiguration, "startup", "stages", "", err)
	}
	p.Orchestrator = orch

	loader := media.NewLoader(media.Options{
		ExpectedWidth:  cfg.Video.ExpectedWidth,
		ExpectedHeight: cfg.Video.ExpectedHeight,
		FFmpegBinary:   cfg.Video.FFmpegBinary,
		FFprobeBinary:  cfg.Video.FFprobeBinary,
		Logger:         logger,
	})
	pub := publish.New(publish.OptionsFromConfig(cfg, logger))
	d, err := daemon.New(daemon.Options{
		Config:       cfg,
		Source:       opts.Source,
		Loader:       loader,
		Orchestrator: orch,
		Publisher:    pub,
		Logger:       logger,
		OnFrame:      opts.OnFrame,
		Leftovers:    pub.Leftovers(),
		Lock:         opts.Lock,
	})
	if err != nil {
		_ = p.Close()
		return nil, services.Wrap(services.ErrInitialization, "startup", "daemon", "", err)
	}
	p.Daemon = d
	return p, nil
}

// Close stops every detector worker.
func (p *Pipeline) Close() error {
	var err error
	for _, d := range p.detectors {
		err = multierr.Append(err, d.Close())
	}
	p.detectors = nil
	return err
}
