package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"detectd/internal/frame"
	"detectd/internal/logging"
)

const stopGrace = 2 * time.Second

// ProcessConfig describes an external detector worker.
type ProcessConfig struct {
	Name      string
	Command   string
	Args      []string
	Threshold float64
	Logger    *slog.Logger
}

// ProcessDetector talks to a long-lived worker process over stdin/stdout.
// A call that times out kills the worker; the next call starts a new one.
type ProcessDetector struct {
	cfg    ProcessConfig
	logger *slog.Logger
	spawn  func() (*conn, error)

	mu     sync.Mutex
	active *conn
	model  string
}

// conn is one running worker.
type conn struct {
	in   io.WriteCloser
	out  io.Reader
	stop func(force bool) error
}

// NewProcessDetector prepares a detector; the worker starts on Start or on first use.
func NewProcessDetector(cfg ProcessConfig) *ProcessDetector {
	p := &ProcessDetector{
		cfg:    cfg,
		logger: logging.NewComponentLogger(cfg.Logger, "detector").With(logging.String(logging.FieldDetector, cfg.Name)),
	}
	p.spawn = p.spawnProcess
	return p
}

// Name returns the configured stage name.
func (p *ProcessDetector) Name() string {
	return p.cfg.Name
}

// Model returns the model identifier the worker reported at startup, if any.
func (p *ProcessDetector) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

// Start launches the worker and waits for it to answer a ping.
func (p *ProcessDetector) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.ensureLocked(ctx)
	return err
}

// Detect sends one frame to the worker and returns its boxes.
func (p *ProcessDetector) Detect(ctx context.Context, buf frame.Buffer, maxBoxes int) (Set, error) {
	if err := buf.Validate(); err != nil {
		return Set{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.ensureLocked(ctx)
	if err != nil {
		return Set{}, err
	}
	resp, err := p.exchangeLocked(ctx, c, request{
		Op:        opDetect,
		Width:     buf.Width,
		Height:    buf.Height,
		MaxBoxes:  maxBoxes,
		Threshold: p.cfg.Threshold,
		Pixels:    encodePixels(buf),
	})
	if err != nil {
		return Set{}, err
	}
	if !resp.OK {
		return Set{}, fmt.Errorf("worker error: %s", strings.TrimSpace(resp.Error))
	}
	boxes, err := decodeBoxes(resp.Boxes)
	if err != nil {
		return Set{}, err
	}
	return Set{Boxes: boxes}, nil
}

// Close stops the worker, if running.
func (p *ProcessDetector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	c := p.active
	p.active = nil
	return c.stop(false)
}

func (p *ProcessDetector) ensureLocked(ctx context.Context) (*conn, error) {
	if p.active != nil {
		return p.active, nil
	}
	c, err := p.spawn()
	if err != nil {
		return nil, err
	}
	p.active = c
	resp, err := p.exchangeLocked(ctx, c, request{Op: opPing})
	if err != nil {
		return nil, fmt.Errorf("worker handshake: %w", err)
	}
	if !resp.OK {
		p.discardLocked()
		return nil, fmt.Errorf("worker handshake rejected: %s", strings.TrimSpace(resp.Error))
	}
	p.model = resp.Model
	p.logger.Info("detector worker ready", logging.String("model", resp.Model))
	return c, nil
}

// exchangeLocked performs one request/response round trip. If ctx ends first
// the worker is killed, since its stream position is no longer known.
func (p *ProcessDetector) exchangeLocked(ctx context.Context, c *conn, req request) (response, error) {
	type result struct {
		resp response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		if r.err = writeMessage(c.in, req); r.err == nil {
			r.err = readMessage(c.out, &r.resp)
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.discardLocked()
			return response{}, r.err
		}
		return r.resp, nil
	case <-ctx.Done():
		p.discardLocked()
		<-done
		return response{}, ctx.Err()
	}
}

func (p *ProcessDetector) discardLocked() {
	if p.active == nil {
		return
	}
	c := p.active
	p.active = nil
	if err := c.stop(true); err != nil {
		p.logger.Debug("worker stopped", logging.Error(err))
	}
}

func (p *ProcessDetector) spawnProcess() (*conn, error) {
	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Stderr = &lineLogger{logger: p.logger}
	// Grandchildren holding the pipes open must not wedge Wait after a kill.
	cmd.WaitDelay = stopGrace
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", p.cfg.Command, err)
	}
	p.logger.Debug("detector worker spawned", logging.Int("pid", cmd.Process.Pid))

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	var once sync.Once
	var stopErr error
	stop := func(force bool) error {
		once.Do(func() {
			_ = stdin.Close()
			if force {
				_ = cmd.Process.Kill()
				stopErr = <-waited
				return
			}
			select {
			case stopErr = <-waited:
			case <-time.After(stopGrace):
				_ = cmd.Process.Kill()
				stopErr = <-waited
			}
		})
		var exitErr *exec.ExitError
		if errors.As(stopErr, &exitErr) {
			return nil
		}
		return stopErr
	}
	return &conn{in: stdin, out: stdout, stop: stop}, nil
}

// lineLogger forwards worker stderr to the logger one line at a time.
type lineLogger struct {
	mu      sync.Mutex
	logger  *slog.Logger
	pending []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, p...)
	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(string(l.pending[:idx])); line != "" {
			l.logger.Info("worker output", logging.String("line", line))
		}
		l.pending = l.pending[idx+1:]
	}
	return len(p), nil
}
