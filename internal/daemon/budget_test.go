package daemon

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecodeBudgetPausesBetweenDecodes(t *testing.T) {
	ctx, budget := newDecodeBudget(context.Background(), 80*time.Millisecond)
	defer budget.stop()

	budget.resume()
	time.Sleep(20 * time.Millisecond)
	budget.pause()

	time.Sleep(150 * time.Millisecond)
	if ctx.Err() != nil {
		t.Fatal("paused budget must not expire")
	}

	budget.resume()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("budget never expired")
	}
	if cause := context.Cause(ctx); !errors.Is(cause, context.DeadlineExceeded) {
		t.Fatalf("expected deadline cause, got %v", cause)
	}
}

func TestDecodeBudgetStopReleasesContext(t *testing.T) {
	ctx, budget := newDecodeBudget(context.Background(), time.Hour)
	budget.resume()
	budget.stop()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected cancelled context, got %v", ctx.Err())
	}
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		t.Fatal("stop is not an expiry")
	}
}

func TestDecodeBudgetDisabledWithoutLimit(t *testing.T) {
	ctx, budget := newDecodeBudget(context.Background(), 0)
	defer budget.stop()
	budget.resume()
	time.Sleep(10 * time.Millisecond)
	if ctx.Err() != nil {
		t.Fatal("a zero limit never expires")
	}
}
