package services

import "context"

type contextKey string

const (
	jobIDKey contextKey = "job_id"
	stageKey contextKey = "stage"
	frameKey contextKey = "frame_index"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithFrameIndex annotates context with the 1-based frame being processed.
func WithFrameIndex(ctx context.Context, index int) context.Context {
	if index <= 0 {
		return ctx
	}
	return context.WithValue(ctx, frameKey, index)
}

// FrameIndexFromContext returns the frame index if present.
func FrameIndexFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(frameKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}
