package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// decodeBudget bounds the time a job spends decoding. The clock only runs
// between resume and pause, so detector time is not charged to it. When the
// budget runs out the context it returned is cancelled, which also stops the
// decoder process started under it.
type decodeBudget struct {
	mu        sync.Mutex
	limit     time.Duration
	remaining time.Duration
	started   time.Time
	timer     *time.Timer
	cancel    context.CancelCauseFunc
}

func newDecodeBudget(ctx context.Context, limit time.Duration) (context.Context, *decodeBudget) {
	ctx, cancel := context.WithCancelCause(ctx)
	return ctx, &decodeBudget{limit: limit, remaining: limit, cancel: cancel}
}

func (b *decodeBudget) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil || b.limit <= 0 {
		return
	}
	if b.remaining <= 0 {
		b.expire()
		return
	}
	b.started = time.Now()
	b.timer = time.AfterFunc(b.remaining, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.expire()
	})
}

func (b *decodeBudget) pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return
	}
	b.timer.Stop()
	b.timer = nil
	b.remaining -= time.Since(b.started)
}

// stop releases the budget's context once the job is done with the media.
func (b *decodeBudget) stop() {
	b.pause()
	b.cancel(nil)
}

// expire must be called with mu held.
func (b *decodeBudget) expire() {
	b.remaining = 0
	b.cancel(fmt.Errorf("decode budget of %s spent: %w", b.limit, context.DeadlineExceeded))
}
