// Package media probes quilt inputs: a single capture, a numbered image
// sequence pattern, a list of views or a rail video.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stevecastle/lkgquilt/ffmpeg"
)

// ErrNoInput is returned when no file matches the given inputs.
var ErrNoInput = errors.New("no input files found")

// Info describes the probed input. Width and Height are the displayed
// dimensions, already swapped for 90/270 degree rotation.
type Info struct {
	Width      int
	Height     int
	FrameCount int
	FrameRate  float64
	Rotation   int
}

func (i Info) String() string {
	return fmt.Sprintf("%dx%d, %d frames, %.3g fps, rotation %d", i.Width, i.Height, i.FrameCount, i.FrameRate, i.Rotation)
}

// ProbeFunc runs ffprobe on a single input.
type ProbeFunc func(ctx context.Context, input string) (*ffmpeg.ProbeResult, error)

// CountFunc decodes input and counts its frames.
type CountFunc func(ctx context.Context, input string, width, height int) (int, error)

// Prober derives Info from ffprobe and, for rail videos, an exact decode count.
type Prober struct {
	probe  ProbeFunc
	count  CountFunc
	logger *slog.Logger
}

// NewProber returns a Prober backed by the installed ffprobe and ffmpeg.
func NewProber(logger *slog.Logger, verbose bool) *Prober {
	return &Prober{
		probe: ffmpeg.Probe,
		count: func(ctx context.Context, input string, w, h int) (int, error) {
			return ffmpeg.CountFrames(ctx, input, w, h, logger, verbose)
		},
		logger: logger,
	}
}

// NewProberWith returns a Prober using the given probe and count functions.
func NewProberWith(probe ProbeFunc, count CountFunc, logger *slog.Logger) *Prober {
	return &Prober{probe: probe, count: count, logger: logger}
}

// Probe inspects inputs. Only the first input is probed; with several
// explicit files each one is a view, so the frame count is the number of
// files. exactCount decodes the whole input to count frames instead of
// trusting container metadata.
func (p *Prober) Probe(ctx context.Context, inputs []string, exactCount bool) (Info, error) {
	if len(inputs) == 0 {
		return Info{}, ErrNoInput
	}
	if err := CheckInputsExist(inputs); err != nil {
		return Info{}, err
	}

	first := inputs[0]
	res, err := p.probe(ctx, first)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrNoInput, err)
	}
	stream, ok := res.VideoStream()
	if !ok {
		return Info{}, fmt.Errorf("%s has no video stream", first)
	}

	info := InfoFromStream(stream)
	metaFrames := info.FrameCount

	switch {
	case len(inputs) > 1:
		info.FrameCount = len(inputs)
	case exactCount:
		p.logger.Info("counting frames because the metadata lies sometimes", "nb_frames", metaFrames)
		n, err := p.count(ctx, first, stream.Width, stream.Height)
		if err != nil {
			if ctx.Err() != nil {
				return Info{}, ctx.Err()
			}
			p.logger.Warn("frame count failed, using container metadata", "error", err, "nb_frames", metaFrames)
		} else if n == 0 {
			p.logger.Warn("decoded no frames, using container metadata", "nb_frames", metaFrames)
		} else {
			info.FrameCount = n
		}
		p.logger.Info("done counting", "frames", info.FrameCount)
	}

	p.logger.Debug("probed input", "input", first, "info", info.String())
	return info, nil
}

// InfoFromStream converts an ffprobe video stream to Info, applying the
// rotation reconciliation and dimension swap.
func InfoFromStream(s ffmpeg.Stream) Info {
	info := Info{
		Width:      s.Width,
		Height:     s.Height,
		FrameCount: 1,
		FrameRate:  ParseFrameRate(s.RFrameRate),
		Rotation:   NetRotation(s),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s.NbFrames)); err == nil {
		info.FrameCount = n
	}
	if SwapsDimensions(info.Rotation) {
		info.Width, info.Height = info.Height, info.Width
	}
	return info
}

// ParseFrameRate parses an ffprobe rational such as "30000/1001".
// Missing, malformed and "0/0" rates yield 0.
func ParseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
