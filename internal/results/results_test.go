package results

import (
	"errors"
	"testing"

	"detectd/internal/detect"
)

func frame(index int, ped, face []detect.Box) detect.FrameResult {
	return detect.FrameResult{Index: index, Outcomes: []detect.Outcome{
		{Name: "ped", Ran: true, Set: detect.Set{Boxes: ped}},
		{Name: "face", Ran: face != nil, Set: detect.Set{Boxes: face}},
	}}
}

func TestRenderFormat(t *testing.T) {
	tests := []struct {
		name   string
		coords Coordinates
		skip   bool
		frames []detect.FrameResult
		want   string
	}{
		{
			name:   "float coordinates in stage order",
			coords: Float,
			skip:   true,
			frames: []detect.FrameResult{
				frame(1, []detect.Box{{Left: 10.5, Top: 20, Right: 110.25, Bottom: 220}}, []detect.Box{{Left: 30, Top: 40, Right: 50, Bottom: 60}}),
			},
			want: "1,ped,1,face,1,10.5,20,110.25,220,30,40,50,60\n",
		},
		{
			name:   "int coordinates round",
			coords: Int,
			skip:   true,
			frames: []detect.FrameResult{
				frame(51, []detect.Box{{Left: 10.5, Top: 20.4, Right: 110.6, Bottom: 219.5}}, nil),
			},
			want: "51,ped,1,face,0,11,20,111,220\n",
		},
		{
			name:   "empty frames skipped",
			coords: Float,
			skip:   true,
			frames: []detect.FrameResult{
				frame(1, nil, nil),
				frame(51, []detect.Box{{Right: 1, Bottom: 2}, {Left: 3, Top: 4, Right: 5, Bottom: 6}}, nil),
				frame(101, nil, nil),
			},
			want: "51,ped,2,face,0,0,0,1,2,3,4,5,6\n",
		},
		{
			name:   "empty frames kept",
			coords: Float,
			frames: []detect.FrameResult{
				frame(1, nil, nil),
				frame(51, []detect.Box{{Right: 1, Bottom: 2}}, nil),
			},
			want: "1,ped,0,face,0\n51,ped,1,face,0,0,0,1,2\n",
		},
		{
			name:   "nothing detected",
			coords: Float,
			skip:   true,
			frames: []detect.FrameResult{frame(1, nil, nil)},
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(Options{Stages: []string{"ped", "face"}, Coordinates: tt.coords, SkipEmpty: tt.skip})
			for _, f := range tt.frames {
				if err := log.Append(f); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if got := log.Render(); got != tt.want {
				t.Fatalf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailedFrameStillLoggedWhenNotSkipping(t *testing.T) {
	log := New(Options{Stages: []string{"ped", "face"}})
	failed := frame(5, nil, nil)
	failed.Outcomes[0].Failed = true
	if err := log.Append(failed); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(frame(6, []detect.Box{{Right: 4, Bottom: 4}}, nil)); err != nil {
		t.Fatal(err)
	}
	want := "5,ped,0,face,0\n6,ped,1,face,0,0,0,4,4\n"
	if got := log.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestAppendRejections(t *testing.T) {
	log := New(Options{Stages: []string{"ped", "face"}})
	if err := log.Append(frame(10, nil, nil)); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(frame(10, nil, nil)); err == nil {
		t.Fatal("expected duplicate index to be rejected")
	}
	if err := log.Append(frame(3, nil, nil)); err == nil {
		t.Fatal("expected out-of-order index to be rejected")
	}
	wrong := detect.FrameResult{Index: 11, Outcomes: []detect.Outcome{{Name: "face"}, {Name: "ped"}}}
	if err := log.Append(wrong); err == nil {
		t.Fatal("expected mismatched stage order to be rejected")
	}
	if err := log.Append(detect.FrameResult{Index: 12}); err == nil {
		t.Fatal("expected missing outcomes to be rejected")
	}

	_ = log.Render()
	if !log.sealed {
		t.Fatal("expected log sealed after render")
	}
	if err := log.Append(frame(20, nil, nil)); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", log.Len())
	}
}

func TestSummaryAndLine(t *testing.T) {
	log := New(Options{Stages: []string{"ped", "face"}})
	_ = log.Append(frame(1, []detect.Box{{Right: 1, Bottom: 1}}, []detect.Box{{Right: 1, Bottom: 1}}))
	_ = log.Append(frame(51, []detect.Box{{Right: 1, Bottom: 1}, {Right: 2, Bottom: 2}}, nil))

	sum := log.Summary()
	if sum["ped"] != 3 || sum["face"] != 1 {
		t.Fatalf("unexpected summary %v", sum)
	}
	if got := log.Line(log.Frames()[1]); got != "51,ped,2,face,0,0,0,1,1,0,0,2,2" {
		t.Fatalf("unexpected line %q", got)
	}
	if log.sealed {
		t.Fatal("Line must not seal the log")
	}
}
