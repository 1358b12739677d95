package quilt

import "fmt"

// FrameSelection picks evenly spaced views out of a rail video.
type FrameSelection struct {
	Interval   int
	StartFrame int
	EndFrame   int
	Views      int
}

// SampleFrames spreads totalViews samples as widely as possible across
// totalFrames frames and centers the window. Frames are zero-indexed, so
// there are totalFrames-1 steps to share between totalViews-1 gaps.
func SampleFrames(totalFrames, totalViews int) FrameSelection {
	interval := 1
	if totalViews > 1 {
		interval = max(1, floorDiv(totalFrames-1, totalViews-1))
	}
	// Truncates toward zero, which matters when there are fewer frames than views.
	start := ((totalFrames - 1) - (totalViews-1)*interval) / 2
	return FrameSelection{
		Interval:   interval,
		StartFrame: start,
		EndFrame:   start + (totalViews-1)*interval,
		Views:      totalViews,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// SelectExpr is the expression for ffmpeg's select filter.
func (s FrameSelection) SelectExpr() string {
	return fmt.Sprintf("gte(n,%d)*lte(n,%d)*not(mod(n-%d,%d))", s.StartFrame, s.EndFrame, s.StartFrame, s.Interval)
}

// Frames returns the frame numbers the expression targets. Some may lie
// outside the video when it is shorter than the number of views.
func (s FrameSelection) Frames() []int {
	frames := make([]int, 0, s.Views)
	for n := s.StartFrame; n <= s.EndFrame; n += s.Interval {
		frames = append(frames, n)
	}
	return frames
}

// Count is how many of the targeted frames exist in a totalFrames video.
func (s FrameSelection) Count(totalFrames int) int {
	c := 0
	for _, n := range s.Frames() {
		if n >= 0 && n < totalFrames {
			c++
		}
	}
	return c
}
