package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/stevecastle/lkgquilt/deps"
)

// SideData is one entry of an ffprobe stream's side_data_list.
type SideData struct {
	Type     string `json:"side_data_type"`
	Rotation int    `json:"rotation"`
}

// Stream holds the ffprobe stream fields the prober reads.
type Stream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	NbFrames     string            `json:"nb_frames"`
	RFrameRate   string            `json:"r_frame_rate"`
	Tags         map[string]string `json:"tags"`
	SideDataList []SideData        `json:"side_data_list"`
}

// ProbeResult is the decoded output of ffprobe -show_streams.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
}

// VideoStream returns the first video stream.
func (p *ProbeResult) VideoStream() (Stream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == "video" {
			return s, true
		}
	}
	return Stream{}, false
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var res ProbeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &res, nil
}

// Probe runs ffprobe on input.
func Probe(ctx context.Context, input string) (*ProbeResult, error) {
	cmd, err := deps.GetExec(ctx, deps.FFmpegID, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		input)
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffprobe %s: %w: %s", input, err, msg)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", input, err)
	}
	return ParseProbe(out)
}

// CountFrames decodes input to raw rgb24 and counts the frames read.
// Container metadata is often wrong for phone footage, so this is the only
// count rail sampling trusts.
func CountFrames(ctx context.Context, input string, width, height int, logger *slog.Logger, verbose bool) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("cannot count frames of %dx%d video", width, height)
	}
	level := "error"
	if verbose {
		level = "verbose"
	}
	cmd, err := deps.GetExec(ctx, deps.FFmpegID, "ffmpeg",
		"-hide_banner",
		"-loglevel", level,
		"-i", input,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:")
	if err != nil {
		return 0, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("ffmpeg failed to start: %w", err)
	}

	tailCh := make(chan []string, 1)
	go func() {
		tailCh <- scanLines(stderr, stderrTail, func(line string) {
			logger.Debug("ffmpeg", "line", line)
		})
	}()

	count, readErr := countChunks(stdout, 3*width*height)
	// Drain whatever is left so ffmpeg never blocks on a full pipe.
	io.Copy(io.Discard, stdout)
	tail := <-tailCh
	waitErr := cmd.Wait()

	if readErr != nil {
		return count, fmt.Errorf("read decoded frames: %w", readErr)
	}
	if waitErr != nil {
		return count, &EngineError{Err: waitErr, Stderr: tail}
	}
	return count, nil
}

// countChunks counts frameSize-byte chunks in r. A short final chunk counts
// as a frame.
func countChunks(r io.Reader, frameSize int) (int, error) {
	buf := make([]byte, frameSize)
	count := 0
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			count++
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return count, nil
		default:
			return count, err
		}
	}
}
