package downloads

import "fmt"

// DownloadStatus represents the current state of a download.
type DownloadStatus string

const (
	StatusPending     DownloadStatus = "pending"
	StatusDownloading DownloadStatus = "downloading"
	StatusExtracting  DownloadStatus = "extracting"
	StatusComplete    DownloadStatus = "complete"
	StatusError       DownloadStatus = "error"
	StatusCancelled   DownloadStatus = "cancelled"
)

// Progress represents the current progress of a single dependency download.
type Progress struct {
	DependencyID    string         `json:"dependency_id"`
	DependencyName  string         `json:"dependency_name"`
	Status          DownloadStatus `json:"status"`
	Message         string         `json:"message"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalBytes      int64          `json:"total_bytes"`
	Percent         float64        `json:"percent"`
	Speed           int64          `json:"speed"` // bytes/sec
	Error           string         `json:"error,omitempty"`
}

// String renders a single status line suitable for a terminal.
func (p Progress) String() string {
	switch p.Status {
	case StatusDownloading:
		if p.TotalBytes > 0 {
			return fmt.Sprintf("%s: %s / %s (%.0f%%) %s", p.DependencyName,
				FormatBytes(p.BytesDownloaded), FormatBytes(p.TotalBytes), p.Percent, FormatSpeed(p.Speed))
		}
		if p.BytesDownloaded > 0 {
			return fmt.Sprintf("%s: %s %s", p.DependencyName, FormatBytes(p.BytesDownloaded), FormatSpeed(p.Speed))
		}
	case StatusError:
		return fmt.Sprintf("%s: %s: %s", p.DependencyName, p.Message, p.Error)
	}
	return fmt.Sprintf("%s: %s", p.DependencyName, p.Message)
}

// ProgressCallback is a function called to report download progress.
type ProgressCallback func(Progress)

// ByteProgressCallback is a function called to report raw byte progress during download.
type ByteProgressCallback func(downloaded, total int64)
