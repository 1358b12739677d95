package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stevecastle/lkgquilt/ffmpeg"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNetRotationAndSwap(t *testing.T) {
	tests := []struct {
		name     string
		tag      string
		side     []ffmpeg.SideData
		wantRot  int
		wantSwap bool
	}{
		{"no rotation", "", nil, 0, false},
		{"tag 90", "90", nil, 90, true},
		{"tag 180", "180", nil, 180, false},
		{"tag 270", "270", nil, 270, true},
		{"tag and side data cancel", "90", []ffmpeg.SideData{{Rotation: 90}}, 0, false},
		{"side data only gives -90", "0", []ffmpeg.SideData{{Rotation: 90}}, -90, true},
		{"side data -90", "", []ffmpeg.SideData{{Rotation: -90}}, 90, true},
		{"zero side data ignored", "90", []ffmpeg.SideData{{Rotation: 0}}, 90, true},
		{"only first side data used", "", []ffmpeg.SideData{{Rotation: 0}, {Rotation: 90}}, 0, false},
		{"garbage tag", "sideways", nil, 0, false},
		{"full turn", "450", nil, 450, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ffmpeg.Stream{SideDataList: tt.side}
			if tt.tag != "" {
				s.Tags = map[string]string{"rotate": tt.tag}
			}
			rot := NetRotation(s)
			if rot != tt.wantRot {
				t.Errorf("NetRotation() = %d; want %d", rot, tt.wantRot)
			}
			if got := SwapsDimensions(rot); got != tt.wantSwap {
				t.Errorf("SwapsDimensions(%d) = %v; want %v", rot, got, tt.wantSwap)
			}
		})
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := map[int]int{0: 0, 90: 90, -90: 270, 360: 0, -270: 90, 720: 0, -450: 270}
	for in, want := range tests {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d; want %d", in, got, want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"", 0},
		{"25", 25},
		{"30/0", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseFrameRate(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestInfoFromStream(t *testing.T) {
	info := InfoFromStream(ffmpeg.Stream{
		Width:        1920,
		Height:       1080,
		NbFrames:     "300",
		RFrameRate:   "60/1",
		SideDataList: []ffmpeg.SideData{{Rotation: -90}},
	})
	want := Info{Width: 1080, Height: 1920, FrameCount: 300, FrameRate: 60, Rotation: 90}
	if info != want {
		t.Errorf("InfoFromStream() = %+v; want %+v", info, want)
	}

	still := InfoFromStream(ffmpeg.Stream{Width: 640, Height: 480})
	if still.FrameCount != 1 {
		t.Errorf("FrameCount without nb_frames = %d; want 1", still.FrameCount)
	}
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		if err := os.WriteFile(paths[i], []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func videoProbe(w, h int, nbFrames string) ProbeFunc {
	return func(ctx context.Context, input string) (*ffmpeg.ProbeResult, error) {
		return &ffmpeg.ProbeResult{Streams: []ffmpeg.Stream{
			{CodecType: "audio"},
			{CodecType: "video", Width: w, Height: h, NbFrames: nbFrames, RFrameRate: "30/1"},
		}}, nil
	}
}

func noCount(t *testing.T) CountFunc {
	return func(context.Context, string, int, int) (int, error) {
		t.Error("count should not run")
		return 0, nil
	}
}

func TestProbeSingleFile(t *testing.T) {
	in := writeFiles(t, "view.png")
	p := NewProberWith(videoProbe(640, 480, ""), noCount(t), discardLogger())

	info, err := p.Probe(context.Background(), in, false)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Width != 640 || info.Height != 480 || info.FrameCount != 1 {
		t.Errorf("Probe() = %+v", info)
	}
}

func TestProbeMultipleFilesCountsFiles(t *testing.T) {
	in := writeFiles(t, "a.png", "b.png", "c.png")
	var probed string
	probe := func(ctx context.Context, input string) (*ffmpeg.ProbeResult, error) {
		probed = input
		return videoProbe(100, 100, "")(ctx, input)
	}
	p := NewProberWith(probe, noCount(t), discardLogger())

	info, err := p.Probe(context.Background(), in, true)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.FrameCount != 3 {
		t.Errorf("FrameCount = %d; want 3", info.FrameCount)
	}
	if probed != in[0] {
		t.Errorf("probed %q; want first input %q", probed, in[0])
	}
}

func TestProbeExactCount(t *testing.T) {
	in := writeFiles(t, "rail.mp4")
	var gotW, gotH int
	count := func(ctx context.Context, input string, w, h int) (int, error) {
		gotW, gotH = w, h
		return 97, nil
	}
	p := NewProberWith(videoProbe(1920, 1080, "100"), count, discardLogger())

	info, err := p.Probe(context.Background(), in, true)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.FrameCount != 97 {
		t.Errorf("FrameCount = %d; want decoded count 97", info.FrameCount)
	}
	if gotW != 1920 || gotH != 1080 {
		t.Errorf("count called with %dx%d; want 1920x1080", gotW, gotH)
	}
}

func TestProbeExactCountFallsBack(t *testing.T) {
	in := writeFiles(t, "rail.mp4")
	tests := []struct {
		name  string
		count CountFunc
	}{
		{"error", func(context.Context, string, int, int) (int, error) { return 0, errors.New("decode failed") }},
		{"zero", func(context.Context, string, int, int) (int, error) { return 0, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProberWith(videoProbe(10, 10, "42"), tt.count, discardLogger())
			info, err := p.Probe(context.Background(), in, true)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if info.FrameCount != 42 {
				t.Errorf("FrameCount = %d; want metadata 42", info.FrameCount)
			}
		})
	}
}

func TestProbeMissingFile(t *testing.T) {
	p := NewProberWith(videoProbe(1, 1, ""), noCount(t), discardLogger())

	_, err := p.Probe(context.Background(), []string{filepath.Join(t.TempDir(), "nope.png")}, false)
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Probe() error = %v; want ErrNoInput", err)
	}

	_, err = p.Probe(context.Background(), nil, false)
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Probe(nil) error = %v; want ErrNoInput", err)
	}
}

func TestProbeFailureIsNoInput(t *testing.T) {
	failing := func(context.Context, string) (*ffmpeg.ProbeResult, error) {
		return nil, errors.New("exit status 1")
	}
	p := NewProberWith(failing, noCount(t), discardLogger())

	// Patterns skip the existence check and go straight to ffprobe.
	_, err := p.Probe(context.Background(), []string{"frame_%04d.png"}, false)
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Probe() error = %v; want ErrNoInput", err)
	}
}

func TestProbeNoVideoStream(t *testing.T) {
	audioOnly := func(context.Context, string) (*ffmpeg.ProbeResult, error) {
		return &ffmpeg.ProbeResult{Streams: []ffmpeg.Stream{{CodecType: "audio"}}}, nil
	}
	p := NewProberWith(audioOnly, noCount(t), discardLogger())

	_, err := p.Probe(context.Background(), writeFiles(t, "song.m4a"), false)
	if err == nil || errors.Is(err, ErrNoInput) {
		t.Errorf("Probe() error = %v; want a no-video error", err)
	}
}

func TestCheckInputsExist(t *testing.T) {
	files := writeFiles(t, "a.png", "b.png")
	if err := CheckInputsExist(append(files, "seq_%03d.png")); err != nil {
		t.Errorf("CheckInputsExist() error = %v; want nil", err)
	}

	missing := filepath.Join(t.TempDir(), "gone.png")
	err := CheckInputsExist([]string{files[0], missing})
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("CheckInputsExist() error = %v; want ErrNoInput", err)
	}
}

func TestCheckFilesExistConcurrent(t *testing.T) {
	files := writeFiles(t, "x.png")
	got := CheckFilesExistConcurrent([]string{files[0], "/definitely/not/here.png"})
	if !got[files[0]] || got["/definitely/not/here.png"] {
		t.Errorf("CheckFilesExistConcurrent() = %v", got)
	}
	if len(CheckFilesExistConcurrent(nil)) != 0 {
		t.Error("CheckFilesExistConcurrent(nil) should be empty")
	}
}
