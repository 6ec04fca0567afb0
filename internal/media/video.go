package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/services"
)

func (l *Loader) loadVideo(ctx context.Context, path string) (Source, error) {
	probe, err := l.probe(ctx, l.ffprobe, path)
	if err != nil {
		return nil, loadErr(ctx, services.ErrDecodeFailure, "probe", path, err)
	}
	stream, ok := probe.PrimaryVideo()
	if !ok {
		return nil, services.Wrap(services.ErrDecodeFailure, "load", "probe", "no video stream in "+path, nil)
	}
	if stream.Width != l.width || stream.Height != l.height {
		return nil, services.Wrap(services.ErrResolutionMismatch, "load", "probe",
			fmt.Sprintf("%s is %dx%d, expected %dx%d", path, stream.Width, stream.Height, l.width, l.height), nil)
	}

	reader, err := l.decoder(ctx, l.ffmpeg, path, l.width, l.height)
	if err != nil {
		return nil, loadErr(ctx, services.ErrDecodeFailure, "start decoder", path, err)
	}
	logging.WithContext(ctx, l.logger).Debug("video decode started",
		logging.String("path", path),
		logging.String("codec", stream.CodecName),
		logging.Int("declared_frames", stream.FrameCount()),
		logging.Float64("frame_rate", stream.FrameRate()),
	)
	return &videoSource{path: path, width: l.width, height: l.height, reader: reader}, nil
}

// videoSource slices a packed rgba stream into frames.
type videoSource struct {
	path    string
	width   int
	height  int
	reader  io.ReadCloser
	decoded int
	done    bool
	closed  bool
}

func (s *videoSource) Next(ctx context.Context) (frame.Buffer, error) {
	if s.done {
		return frame.Buffer{}, io.EOF
	}
	raw := make([]byte, s.width*s.height*frame.Channels)
	n, err := io.ReadFull(s.reader, raw)
	switch {
	case err == nil:
		s.decoded++
		return frame.FromRGBA(s.width, s.height, raw)
	case errors.Is(err, io.EOF):
		s.done = true
		if closeErr := s.Close(); closeErr != nil {
			return frame.Buffer{}, loadErr(ctx, services.ErrDecodeFailure, "decode", s.path, closeErr)
		}
		if s.decoded == 0 {
			return frame.Buffer{}, services.Wrap(services.ErrDecodeFailure, "load", "decode", "no frames decoded from "+s.path, nil)
		}
		return frame.Buffer{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		_ = s.Close()
		return frame.Buffer{}, loadErr(ctx, services.ErrDecodeFailure, "decode",
			fmt.Sprintf("truncated frame %d (%d of %d bytes)", s.decoded+1, n, len(raw)), err)
	default:
		s.done = true
		_ = s.Close()
		return frame.Buffer{}, loadErr(ctx, services.ErrDecodeFailure, "decode", s.path, err)
	}
}

func (s *videoSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	return s.reader.Close()
}

// DecodeArgs builds the ffmpeg argument list that emits packed rgba frames on stdout.
func DecodeArgs(path string, width, height int) []string {
	stream := ffmpeg.Input(path).Output("pipe:", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", width, height),
		"map":     "0:v:0",
	})
	return append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, stream.GetArgs()...)
}

func startFFmpeg(ctx context.Context, binary, path string, width, height int) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, binary, DecodeArgs(path, width, height)...)
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	return &ffmpegReader{cmd: cmd, stdout: stdout, stderr: stderr, cancel: cancel}, nil
}

type ffmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	cancel context.CancelFunc
	eof    bool
}

func (r *ffmpegReader) Read(p []byte) (int, error) {
	n, err := r.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		r.eof = true
	}
	return n, err
}

// Close stops ffmpeg if output is still pending and reports a failed exit
// only when the stream was read to the end.
func (r *ffmpegReader) Close() error {
	if !r.eof {
		r.cancel()
	}
	err := r.cmd.Wait()
	r.cancel()
	if !r.eof {
		return nil
	}
	if err != nil {
		if msg := r.stderr.String(); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
