package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"detectd/internal/logs"
)

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detectd.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}

	lines, offset, err = logs.Last(path, 10)
	if err != nil || len(lines) != 3 || offset != 6 {
		t.Fatalf("Last(10) = %#v, %d, %v", lines, offset, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "none.log"), 5)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("Last on missing file = %#v, %d, %v", lines, offset, err)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitForLines(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d lines, got %#v", n, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestFollowStreamsAppendedLinesAndRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detectd.log")
	appendTo(t, path, "start\n")
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, logs.FollowOptions{Offset: offset, Interval: 20 * time.Millisecond}, c.add)
	}()

	appendTo(t, path, "later\npart")
	got := waitForLines(t, c, 1)
	if got[0] != "later" {
		t.Fatalf("unexpected first line %q", got[0])
	}
	appendTo(t, path, "ial\n")
	got = waitForLines(t, c, 2)
	if got[1] != "partial" {
		t.Fatalf("partial line must be emitted once complete, got %#v", got)
	}

	if err := os.Rename(path, filepath.Join(dir, "detectd-old.log")); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path, "fresh\n")
	got = waitForLines(t, c, 3)
	if got[2] != "fresh" {
		t.Fatalf("expected rotated file to be read from the top, got %#v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop on cancel")
	}
}
