package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"detectd/internal/config"
	"detectd/internal/detect"
	"detectd/internal/fileutil"
	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/media"
	"detectd/internal/results"
	"detectd/internal/sampler"
	"detectd/internal/sentinel"
	"detectd/internal/services"
	"detectd/internal/staging"
)

// Loader opens media for a job.
type Loader interface {
	Load(ctx context.Context, path string, kind media.Kind) (media.Source, error)
}

// Orchestrator runs the detection stages on one frame.
type Orchestrator interface {
	Names() []string
	BeginJob()
	Run(ctx context.Context, index int, buf frame.Buffer) detect.FrameResult
}

// Publisher makes a job's results visible.
type Publisher interface {
	Publish(ctx context.Context, log *results.Log, thumbnail frame.Buffer, sourcePath string) error
}

// Options wires the pipeline stages into a Daemon.
type Options struct {
	Config       *config.Config
	Source       sentinel.Source
	Loader       Loader
	Orchestrator Orchestrator
	Publisher    Publisher
	Logger       *slog.Logger
	// OnFrame, when set, observes every detected frame of every job.
	OnFrame func(Job, detect.FrameResult)
	// Leftovers are temp files removed once the lock is held, before the
	// first poll.
	Leftovers []string
	// Lock, when set, is an instance lock the caller already holds and will
	// release. Without it Run acquires and releases its own.
	Lock *InstanceLock
}

// Job is one consumed trigger.
type Job struct {
	ID        string
	Path      string
	Kind      media.Kind
	CreatedAt time.Time
}

// Report summarizes a finished or abandoned job.
type Report struct {
	Job        Job
	FramesRead int
	Frames     []detect.FrameResult
	Boxes      map[string]int
	Output     string
	Thumbnail  bool
	Published  bool
	Duration   time.Duration
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	Locked          bool
	State           State
	CurrentJob      string
	JobsCompleted   int
	JobsAbandoned   int
	PublishFailures int
	LastJobAt       time.Time
	LockFilePath    string
}

// Daemon consumes triggers one job at a time and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	source   sentinel.Source
	loader   Loader
	orch     Orchestrator
	pub      Publisher
	logger   *slog.Logger
	onFrame  func(Job, detect.FrameResult)
	leftover []string

	lockPath string
	held     *InstanceLock

	running atomic.Bool
	locked  atomic.Bool
	state   atomic.Int32

	mu    sync.Mutex
	stats Status
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Source == nil || opts.Loader == nil || opts.Orchestrator == nil || opts.Publisher == nil {
		return nil, errors.New("daemon requires config, source, loader, orchestrator, and publisher")
	}
	lockPath := opts.Config.LockPath()
	if opts.Lock != nil {
		lockPath = opts.Lock.Path()
	}
	return &Daemon{
		cfg:      opts.Config,
		source:   opts.Source,
		loader:   opts.Loader,
		orch:     opts.Orchestrator,
		pub:      opts.Publisher,
		logger:   logging.NewComponentLogger(opts.Logger, "daemon"),
		onFrame:  opts.OnFrame,
		leftover: opts.Leftovers,
		lockPath: lockPath,
		held:     opts.Lock,
	}, nil
}

// Run polls for triggers until ctx is cancelled. The stop signal is observed
// between polls only; a job that has started runs to completion.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if d.held == nil {
		lock, err := AcquireLock(d.lockPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				d.logger.Warn("failed to release daemon lock", logging.Error(err))
			}
		}()
	}
	d.locked.Store(true)
	defer d.locked.Store(false)

	staging.CleanLeftovers(d.leftover, d.logger)

	d.logger.Info("detectd daemon started",
		logging.String("lock", d.lockPath),
		logging.Any("stages", d.orch.Names()),
	)
	for ctx.Err() == nil {
		trig, ok := d.source.Poll(ctx)
		if !ok {
			continue
		}
		_, _ = d.ProcessJob(ctx, trig)
	}
	d.logger.Info("detectd daemon stopped")
	return nil
}

// ProcessJob runs one trigger through load, sampling, detection and publish.
// Cancellation of ctx does not interrupt the job; decode and detector
// timeouts still apply. The returned error carries a services marker; only
// load failures and publish failures are reported, detector failures are
// absorbed into the results.
func (d *Daemon) ProcessJob(ctx context.Context, trig sentinel.Trigger) (Report, error) {
	job := Job{
		ID:        uuid.NewString(),
		Path:      trig.Path,
		Kind:      trig.Kind,
		CreatedAt: trig.ObservedAt,
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	started := time.Now()
	report := Report{Job: job}

	jobCtx := services.WithJobID(context.WithoutCancel(ctx), job.ID)
	logger := logging.WithContext(jobCtx, d.logger)
	d.beginJob(job)
	defer d.setState(StateIdle)

	d.setState(StateTriggered)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("path", job.Path),
		logging.String("kind", string(job.Kind)),
	)

	err := d.runJob(jobCtx, job, &report)
	report.Duration = time.Since(started)
	d.finishJob(err)
	if err != nil {
		d.logJobError(jobCtx, job, err)
		return report, err
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.Int("frames_read", report.FramesRead),
		logging.Int("frames_detected", len(report.Frames)),
		logging.Bool("thumbnail", report.Thumbnail),
		logging.Duration("elapsed", report.Duration),
	)
	return report, nil
}

func (d *Daemon) runJob(ctx context.Context, job Job, report *Report) error {
	decodeCtx, budget := newDecodeBudget(ctx, d.cfg.DecodeTimeout())
	defer budget.stop()

	d.setState(StateLoading)
	budget.resume()
	src, err := d.loader.Load(decodeCtx, job.Path, job.Kind)
	budget.pause()
	if err != nil {
		d.discardMedia(ctx, job.Path)
		return err
	}
	defer src.Close()

	var s *sampler.Sampler
	if job.Kind == media.KindImage {
		s = sampler.ForImage(src)
	} else {
		s = sampler.New(src, d.cfg.Video.SampleStride, d.cfg.Video.ThumbnailFrame)
	}

	d.setState(StateDetecting)
	d.orch.BeginJob()
	log := results.New(results.Options{
		Stages:      d.orch.Names(),
		Coordinates: results.Coordinates(d.cfg.Output.Coordinates),
		SkipEmpty:   d.cfg.Output.SkipEmpty,
	})
	logger := logging.WithContext(ctx, d.logger)
	for {
		budget.resume()
		sample, err := s.Next(decodeCtx)
		budget.pause()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.FramesRead = s.FramesRead()
			report.Frames = log.Frames()
			d.discardMedia(ctx, job.Path)
			return err
		}
		result := d.orch.Run(ctx, sample.Index, sample.Buffer)
		if err := log.Append(result); err != nil {
			return fmt.Errorf("aggregate frame %d: %w", sample.Index, err)
		}
		logger.Debug("frame detected", logging.String("line", log.Line(result)))
		if d.onFrame != nil {
			d.onFrame(job, result)
		}
	}
	report.FramesRead = s.FramesRead()
	report.Frames = log.Frames()
	report.Boxes = log.Summary()

	d.setState(StateAggregating)
	thumbnail, ok := s.Thumbnail()
	report.Thumbnail = ok
	if !ok {
		thumbnail = frame.Buffer{}
	}

	d.setState(StatePublishing)
	if err := d.pub.Publish(ctx, log, thumbnail, job.Path); err != nil {
		return err
	}
	report.Published = true
	report.Output = log.Render()
	return nil
}

// discardMedia removes a job's input after an abandoned load so the producer
// is free to write the next one.
func (d *Daemon) discardMedia(ctx context.Context, path string) {
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WithContext(ctx, d.logger).Debug("abandoned media not removed", logging.String("path", path), logging.Error(err))
	}
}

func (d *Daemon) logJobError(ctx context.Context, job Job, err error) {
	logger := logging.WithContext(ctx, d.logger)
	attrs := []logging.Attr{
		logging.String("path", job.Path),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.Error(err),
	}
	switch services.Classify(err) {
	case services.DispositionContinue:
		logging.WarnWithContext(logger, "job result lost", "publish_failed",
			append(attrs,
				logging.String(logging.FieldImpact, "no output for this job; previous output left in place"),
				logging.String(logging.FieldErrorHint, "check free space and permissions on the output directory"),
			)...)
	default:
		logging.WarnWithContext(logger, "job abandoned", "job_abandoned",
			append(attrs,
				logging.String(logging.FieldImpact, "no output for this job"),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)...)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise video.decode_timeout_seconds or check that ffmpeg is not stalled"
	case errors.Is(err, services.ErrResolutionMismatch):
		return "producer must write video at video.expected_width x video.expected_height"
	case errors.Is(err, services.ErrNotFound):
		return "media disappeared between trigger and load"
	default:
		return "inspect the media file with ffprobe"
	}
}

func (d *Daemon) beginJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.CurrentJob = job.ID
}

func (d *Daemon) finishJob(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.CurrentJob = ""
	d.stats.LastJobAt = time.Now()
	switch {
	case err == nil:
		d.stats.JobsCompleted++
	case errors.Is(err, services.ErrPublishFailure):
		d.stats.PublishFailures++
	default:
		d.stats.JobsAbandoned++
	}
}

func (d *Daemon) setState(s State) {
	d.state.Store(int32(s))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	status := d.stats
	d.mu.Unlock()
	status.Running = d.running.Load()
	status.Locked = d.locked.Load()
	status.State = State(d.state.Load())
	status.LockFilePath = d.lockPath
	return status
}
