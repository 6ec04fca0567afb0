package sentinel

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"detectd/internal/config"
	"detectd/internal/logging"
	"detectd/internal/media"
	"detectd/internal/services"
)

const defaultInterval = time.Second

// Trigger is one consumed marker with the media it refers to.
type Trigger struct {
	Path       string
	Kind       media.Kind
	ObservedAt time.Time
}

// Source hands triggers to the daemon. Poll returns false when nothing is
// ready after at most one wait interval, or when ctx is done.
type Source interface {
	Poll(ctx context.Context) (Trigger, bool)
}

// Options configures a FileWatcher.
type Options struct {
	MarkerPath   string
	ImagePath    string
	VideoPath    string
	VideoEnabled bool
	Interval     time.Duration
	// Notify wakes the wait early when the marker appears.
	Notify bool
	Clock  clock.Clock
	Logger *slog.Logger
}

// OptionsFromConfig maps configuration onto watcher options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		MarkerPath:   cfg.Paths.Trigger,
		ImagePath:    cfg.Paths.Image,
		VideoPath:    cfg.Paths.Video,
		VideoEnabled: cfg.Video.Enabled,
		Interval:     cfg.PollInterval(),
		Notify:       cfg.Watch.Notify,
		Logger:       logger,
	}
}

// FileWatcher implements the marker-file handoff: the producer writes the
// media and then the marker; the watcher deletes the marker before it reads
// anything.
type FileWatcher struct {
	opts   Options
	clock  clock.Clock
	logger *slog.Logger

	wake chan struct{}

	mu       sync.Mutex
	notifier *fsnotify.Watcher
	wg       sync.WaitGroup
}

// NewFileWatcher constructs a watcher. Call Start to enable notifications and
// Close to release them.
func NewFileWatcher(opts Options) *FileWatcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &FileWatcher{
		opts:   opts,
		clock:  clk,
		logger: logging.NewComponentLogger(opts.Logger, "sentinel"),
		wake:   make(chan struct{}, 1),
	}
}

// Start installs the notification assist when enabled. A watcher that cannot
// be created is logged and the watcher keeps polling.
func (w *FileWatcher) Start() {
	if !w.opts.Notify {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.notifier != nil {
		return
	}
	notifier, err := fsnotify.NewWatcher()
	if err == nil {
		err = notifier.Add(filepath.Dir(w.opts.MarkerPath))
		if err != nil {
			_ = notifier.Close()
		}
	}
	if err != nil {
		w.logger.Warn("marker notifications unavailable; polling only",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notify_unavailable"),
			logging.String(logging.FieldImpact, "trigger latency up to one poll interval"),
		)
		return
	}
	w.notifier = notifier
	w.wg.Add(1)
	go w.forward(notifier)
}

// Close stops the notification assist.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	notifier := w.notifier
	w.notifier = nil
	w.mu.Unlock()
	if notifier == nil {
		return nil
	}
	err := notifier.Close()
	w.wg.Wait()
	return err
}

func (w *FileWatcher) forward(notifier *fsnotify.Watcher) {
	defer w.wg.Done()
	marker := filepath.Clean(w.opts.MarkerPath)
	for {
		select {
		case event, ok := <-notifier.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != marker || !event.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-notifier.Errors:
			if !ok {
				return
			}
			w.logger.Debug("marker notification error", logging.Error(err))
		}
	}
}

// Poll consumes the marker if present. Removing the marker is the claim: only
// after it succeeds is the media path resolved.
func (w *FileWatcher) Poll(ctx context.Context) (Trigger, bool) {
	if ctx.Err() != nil {
		return Trigger{}, false
	}
	err := os.Remove(w.opts.MarkerPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.wait(ctx)
		return Trigger{}, false
	case err != nil:
		logging.WarnWithContext(w.logger, "trigger marker could not be removed", "marker_remove_failed",
			logging.String("path", w.opts.MarkerPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the daemon needs write access to the watch directory"),
		)
		w.wait(ctx)
		return Trigger{}, false
	}

	observed := w.clock.Now()
	for _, candidate := range w.candidates() {
		if readable(candidate.path) {
			w.logger.Debug("trigger consumed",
				logging.String("path", candidate.path),
				logging.String("kind", string(candidate.kind)),
			)
			return Trigger{Path: candidate.path, Kind: candidate.kind, ObservedAt: observed}, true
		}
	}

	raceErr := services.Wrap(services.ErrTriggerRace, "watch", "resolve media", "marker present without readable media", nil)
	logging.WarnWithContext(w.logger, "trigger skipped", "trigger_race",
		logging.Error(raceErr),
		logging.String(logging.FieldErrorKind, services.Kind(raceErr)),
		logging.String(logging.FieldImpact, "job dropped; producer must write media before the marker"),
	)
	return Trigger{}, false
}

type candidate struct {
	path string
	kind media.Kind
}

func (w *FileWatcher) candidates() []candidate {
	list := make([]candidate, 0, 2)
	if w.opts.ImagePath != "" {
		list = append(list, candidate{path: w.opts.ImagePath, kind: media.KindImage})
	}
	if w.opts.VideoEnabled && w.opts.VideoPath != "" {
		list = append(list, candidate{path: w.opts.VideoPath, kind: media.KindVideo})
	}
	return list
}

func (w *FileWatcher) wait(ctx context.Context) {
	timer := w.clock.Timer(w.opts.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-w.wake:
	}
}

func readable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.R_OK) == nil
}

// Queue is an in-memory Source for embedding and tests.
type Queue struct {
	ch chan Trigger
}

// NewQueue returns a queue holding up to size pending triggers.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan Trigger, size)}
}

// Push enqueues a trigger, blocking while the queue is full.
func (q *Queue) Push(t Trigger) {
	q.ch <- t
}

// Poll waits for the next trigger or for ctx to end.
func (q *Queue) Poll(ctx context.Context) (Trigger, bool) {
	select {
	case t := <-q.ch:
		return t, true
	case <-ctx.Done():
		return Trigger{}, false
	}
}
