package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/services"
)

// Trigger decides whether a secondary stage runs on a frame.
type Trigger string

const (
	// TriggerAlways runs the stage on every frame.
	TriggerAlways Trigger = "always"
	// TriggerIfPrimaryNonEmpty runs the stage on every frame where the primary found something.
	TriggerIfPrimaryNonEmpty Trigger = "if-primary-nonempty"
	// TriggerOncePerJob runs the stage on the first frame of a job where the primary found something.
	TriggerOncePerJob Trigger = "once-per-job-if-primary-nonempty"
)

// ParseTrigger validates a configured trigger name.
func ParseTrigger(value string) (Trigger, error) {
	switch t := Trigger(value); t {
	case TriggerAlways, TriggerIfPrimaryNonEmpty, TriggerOncePerJob:
		return t, nil
	default:
		return "", fmt.Errorf("unknown stage trigger %q", value)
	}
}

// Stage is one named detector with its invocation policy.
type Stage struct {
	Name      string
	Detector  Detector
	Trigger   Trigger
	MaxBoxes  int
	Threshold float64
	Timeout   time.Duration
}

// shouldRun evaluates the trigger against the primary's result on this frame.
func (s Stage) shouldRun(primaryNonEmpty, firedThisJob bool) bool {
	switch s.Trigger {
	case TriggerIfPrimaryNonEmpty:
		return primaryNonEmpty
	case TriggerOncePerJob:
		return primaryNonEmpty && !firedThisJob
	default:
		return true
	}
}

// Orchestrator runs the stage list on each frame of a job, one detector at a
// time. It is not safe for concurrent use.
type Orchestrator struct {
	stages []Stage
	fired  []bool
	logger *slog.Logger
}

// NewOrchestrator validates the stage list. The first stage is the primary
// and must use TriggerAlways.
func NewOrchestrator(stages []Stage, logger *slog.Logger) (*Orchestrator, error) {
	if len(stages) == 0 {
		return nil, errors.New("orchestrator: at least one stage is required")
	}
	seen := make(map[string]struct{}, len(stages))
	for i, stage := range stages {
		if stage.Detector == nil {
			return nil, fmt.Errorf("orchestrator: stage %q has no detector", stage.Name)
		}
		if _, dup := seen[stage.Name]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate stage %q", stage.Name)
		}
		seen[stage.Name] = struct{}{}
		if _, err := ParseTrigger(string(stage.Trigger)); err != nil {
			return nil, fmt.Errorf("orchestrator: stage %q: %w", stage.Name, err)
		}
		if i == 0 && stage.Trigger != TriggerAlways {
			return nil, fmt.Errorf("orchestrator: primary stage %q must use trigger %q", stage.Name, TriggerAlways)
		}
		if stage.MaxBoxes <= 0 {
			return nil, fmt.Errorf("orchestrator: stage %q needs a positive box limit", stage.Name)
		}
	}
	return &Orchestrator{
		stages: append([]Stage(nil), stages...),
		fired:  make([]bool, len(stages)),
		logger: logging.NewComponentLogger(logger, "orchestrator"),
	}, nil
}

// Names lists stage names in order.
func (o *Orchestrator) Names() []string {
	names := make([]string, len(o.stages))
	for i, s := range o.stages {
		names[i] = s.Name
	}
	return names
}

// BeginJob clears per-job trigger state.
func (o *Orchestrator) BeginJob() {
	clear(o.fired)
}

// Run executes the stages on one frame. Detector failures are absorbed: the
// stage reports an empty set and the remaining stages still run.
func (o *Orchestrator) Run(ctx context.Context, index int, buf frame.Buffer) FrameResult {
	ctx = services.WithFrameIndex(services.WithStage(ctx, "detect"), index)
	result := FrameResult{Index: index, Outcomes: make([]Outcome, len(o.stages))}

	primaryNonEmpty := false
	for i, stage := range o.stages {
		outcome := Outcome{Name: stage.Name}
		if i == 0 || stage.shouldRun(primaryNonEmpty, o.fired[i]) {
			outcome.Ran = true
			o.fired[i] = true
			set, err := o.invoke(ctx, stage, buf)
			if err != nil {
				outcome.Failed = true
				logging.WarnWithContext(logging.WithContext(ctx, o.logger), "detector failed; recording zero detections", "detector_failure",
					logging.String(logging.FieldDetector, stage.Name),
					logging.String(logging.FieldErrorKind, services.Kind(err)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the detector worker log output"),
				)
			} else {
				outcome.Set = set
			}
		}
		if i == 0 {
			primaryNonEmpty = !outcome.Set.Empty()
		}
		result.Outcomes[i] = outcome
	}
	return result
}

func (o *Orchestrator) invoke(ctx context.Context, stage Stage, buf frame.Buffer) (Set, error) {
	callCtx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	started := time.Now()
	set, err := stage.Detector.Detect(callCtx, buf, stage.MaxBoxes)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Set{}, services.Wrap(services.ErrDetectorFailure, "detect", stage.Name, "timed out after "+stage.Timeout.String(), fmt.Errorf("%w: %w", services.ErrTimeout, err))
		}
		return Set{}, services.Wrap(services.ErrDetectorFailure, "detect", stage.Name, "", err)
	}
	if err := validate(set); err != nil {
		return Set{}, services.Wrap(services.ErrDetectorFailure, "detect", stage.Name, "invalid output", err)
	}

	boxes := NewScoreFilter(stage.Threshold)(set.Boxes)
	boxes = NewLimit(stage.MaxBoxes)(boxes)
	logging.WithContext(ctx, o.logger).Debug("detector finished",
		logging.String(logging.FieldDetector, stage.Name),
		logging.Int("count", len(boxes)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Set{Boxes: boxes}, nil
}
