package downloads

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DownloadManager runs dependency installs and forwards every progress
// update, tagged with the dependency, to a listener.
type DownloadManager struct {
	listener ProgressCallback
}

// NewDownloadManager creates a DownloadManager. listener may be nil.
func NewDownloadManager(listener ProgressCallback) *DownloadManager {
	return &DownloadManager{listener: listener}
}

// Install runs downloadFn for a single dependency and reports the final
// status: complete, cancelled or error.
func (m *DownloadManager) Install(ctx context.Context, depID string, depName string, downloadFn func(context.Context, ProgressCallback) error) error {
	progressCb := func(p Progress) {
		p.DependencyID = depID
		p.DependencyName = depName
		m.notify(p)
	}

	progressCb(Progress{Status: StatusDownloading, Message: "Starting download..."})

	if err := downloadFn(ctx, progressCb); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			progressCb(Progress{Status: StatusCancelled, Message: "Download cancelled"})
		} else {
			progressCb(Progress{Status: StatusError, Error: err.Error(), Message: "Download failed"})
		}
		return err
	}

	progressCb(Progress{Status: StatusComplete, Message: "Installation complete", Percent: 100})
	return nil
}

func (m *DownloadManager) notify(p Progress) {
	if m.listener != nil {
		m.listener(p)
	}
}

// SpeedTracker tracks download speed over time.
type SpeedTracker struct {
	mu          sync.Mutex
	lastBytes   int64
	lastTime    time.Time
	speedWindow []int64
}

// NewSpeedTracker creates a new SpeedTracker.
func NewSpeedTracker() *SpeedTracker {
	return &SpeedTracker{
		lastTime:    time.Now(),
		speedWindow: make([]int64, 0, 10),
	}
}

// Update records totalBytes and returns the smoothed speed in bytes/sec.
func (s *SpeedTracker) Update(totalBytes int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()

	if elapsed < 0.1 {
		return s.averageSpeed()
	}

	speed := int64(float64(totalBytes-s.lastBytes) / elapsed)
	s.lastBytes = totalBytes
	s.lastTime = now

	s.speedWindow = append(s.speedWindow, speed)
	if len(s.speedWindow) > 10 {
		s.speedWindow = s.speedWindow[1:]
	}
	return s.averageSpeed()
}

func (s *SpeedTracker) averageSpeed() int64 {
	if len(s.speedWindow) == 0 {
		return 0
	}
	var sum int64
	for _, v := range s.speedWindow {
		sum += v
	}
	return sum / int64(len(s.speedWindow))
}
