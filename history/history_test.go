package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateRunning, "Running"},
		{StateCompleted, "Completed"},
		{StateFailed, "Failed"},
		{StateCancelled, "Cancelled"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q; want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(StateCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"cancelled"` {
		t.Errorf("Marshal(StateCancelled) = %s; want \"cancelled\"", data)
	}

	var s State
	if err := json.Unmarshal([]byte(`"failed"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != StateFailed {
		t.Errorf("Unmarshal(failed) = %v; want Failed", s)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &s); err == nil {
		t.Error("Unmarshal(bogus) should fail")
	}
}

func TestStartFinishRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r, err := s.Start(ctx, []string{"-r", "2", "clip.mp4"}, []string{"clip.mp4"}, "clip_qs8x2a0.75.png")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if r.ID == "" {
		t.Fatal("Start() returned an empty ID")
	}
	if r.State != StateRunning {
		t.Errorf("State = %v; want Running", r.State)
	}

	r.Log = []string{"frame=1"}
	if err := s.Finish(ctx, r, nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateCompleted {
		t.Errorf("State = %v; want Completed", got.State)
	}
	if got.Output != "clip_qs8x2a0.75.png" {
		t.Errorf("Output = %q", got.Output)
	}
	if len(got.Args) != 3 || got.Args[2] != "clip.mp4" {
		t.Errorf("Args = %v", got.Args)
	}
	if len(got.Inputs) != 1 || got.Inputs[0] != "clip.mp4" {
		t.Errorf("Inputs = %v", got.Inputs)
	}
	if len(got.Log) != 1 || got.Log[0] != "frame=1" {
		t.Errorf("Log = %v", got.Log)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v; want %v", got.CreatedAt, r.CreatedAt)
	}
	if got.FinishedAt.IsZero() || got.Duration() < 0 {
		t.Errorf("FinishedAt = %v; want it set", got.FinishedAt)
	}
}

func TestFinishStates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		err  error
		want State
	}{
		{nil, StateCompleted},
		{fmt.Errorf("render: %w", context.Canceled), StateCancelled},
		{errors.New("ffmpeg exited with status 1"), StateFailed},
	}
	for _, tt := range tests {
		r, err := s.Start(ctx, nil, nil, "out.png")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Finish(ctx, r, tt.err); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State != tt.want {
			t.Errorf("Finish(%v) state = %v; want %v", tt.err, got.State, tt.want)
		}
		if tt.err != nil && got.Error != tt.err.Error() {
			t.Errorf("Error = %q; want %q", got.Error, tt.err.Error())
		}
	}
}

func TestGetUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v; want ErrNotFound", err)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := &Run{
			ID:        fmt.Sprintf("run-%d", i),
			Output:    fmt.Sprintf("out-%d.png", i),
			State:     StateCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("List(3) returned %d runs", len(runs))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d].ID = %q; want %q", i, runs[i].ID, want)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("List(0) returned %d runs; want 5", len(all))
	}

	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Prune(2) removed %d; want 3", n)
	}
	left, _ := s.List(ctx, 0)
	if len(left) != 2 || left[0].ID != "run-4" {
		t.Errorf("after Prune: %v", left)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	r, err := s.Start(context.Background(), nil, []string{"a.png"}, "b.png")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), r.ID); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}

func TestSummary(t *testing.T) {
	r := Run{
		ID:        "0123456789abcdef",
		State:     StateFailed,
		Output:    "q.png",
		Error:     "boom",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	got := r.Summary()
	for _, want := range []string{"01234567", "Failed", "2 hours ago", "q.png", "(boom)"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q; want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "89abcdef") {
		t.Errorf("Summary() = %q; want a shortened ID", got)
	}
}
