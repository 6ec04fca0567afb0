package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sample = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "aac"},
    {"index": 1, "codec_type": "video", "codec_name": "h264", "width": 1024, "height": 768,
     "pix_fmt": "yuv420p", "avg_frame_rate": "30000/1001", "nb_frames": "101"}
  ],
  "format": {"filename": "detect.mp4", "nb_streams": 2, "duration": "3.37", "format_name": "mov,mp4"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		t.Fatal("expected a video stream")
	}
	if video.Width != 1024 || video.Height != 768 {
		t.Fatalf("unexpected dimensions %dx%d", video.Width, video.Height)
	}
	if video.FrameCount() != 101 {
		t.Fatalf("unexpected frame count %d", video.FrameCount())
	}
	if rate := video.FrameRate(); math.Abs(rate-29.97) > 0.01 {
		t.Fatalf("unexpected frame rate %v", rate)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.DurationSeconds() != 3.37 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestHelpersHandleMissingValues(t *testing.T) {
	stream := Stream{AvgFrameRate: "0/0", NBFrames: "N/A"}
	if stream.FrameRate() != 0 {
		t.Fatalf("expected 0 frame rate, got %v", stream.FrameRate())
	}
	if stream.FrameCount() != 0 {
		t.Fatalf("expected 0 frame count, got %d", stream.FrameCount())
	}
	if _, ok := (Result{}).PrimaryVideo(); ok {
		t.Fatal("expected no video stream")
	}
	if !math.IsNaN((Result{Format: Format{Duration: "bad"}}).DurationSeconds()) {
		t.Fatal("expected NaN for unparsable duration")
	}
}

func TestInspectUsesBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat <<'JSON'\n" + sample + "\nJSON\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	result, err := Inspect(context.Background(), script, "/tmp/detect.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if _, ok := result.PrimaryVideo(); !ok {
		t.Fatal("expected parsed video stream")
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
