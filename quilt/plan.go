package quilt

import (
	"errors"
	"fmt"

	"github.com/stevecastle/lkgquilt/ffmpeg"
	"github.com/stevecastle/lkgquilt/media"
)

// Options are the user-facing quilt parameters.
type Options struct {
	Rows    int
	Columns int
	Aspect  float64 // crop aspect, width/height
	Width   int     // canvas width
	Height  int     // canvas height
	Invert  bool
	Focus   float64
	Rail    bool
}

// Views is the number of tiles in the quilt.
func (o Options) Views() int {
	return o.Rows * o.Columns
}

// Validate rejects options no quilt can be built from.
func (o Options) Validate() error {
	var errs []error
	if o.Rows <= 0 {
		errs = append(errs, fmt.Errorf("rows must be positive, got %d", o.Rows))
	}
	if o.Columns <= 0 {
		errs = append(errs, fmt.Errorf("columns must be positive, got %d", o.Columns))
	}
	if o.Aspect <= 0 {
		errs = append(errs, fmt.Errorf("aspect must be positive, got %v", o.Aspect))
	}
	if o.Width <= 0 || o.Height <= 0 {
		errs = append(errs, fmt.Errorf("quilt size must be positive, got %dx%d", o.Width, o.Height))
	}
	return errors.Join(errs...)
}

// Plan is every value needed to build the quilt filter chain.
type Plan struct {
	Options    Options
	Inputs     []string
	Source     media.Info
	CropWidth  int
	CropHeight int
	Layout     Layout
	Focus      FocusShift
	Selection  *FrameSelection // rail mode only
	FlipMethod string
}

// NewPlan computes the quilt geometry for inputs described by src.
func NewPlan(opts Options, inputs []string, src media.Info) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, media.ErrNoInput
	}
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("source has no size: %dx%d", src.Width, src.Height)
	}

	views := opts.Views()
	cropW, cropH := CroppedDimensions(src.Width, src.Height, opts.Aspect)

	p := &Plan{
		Options:    opts,
		Inputs:     inputs,
		Source:     src,
		CropWidth:  cropW,
		CropHeight: cropH,
		Layout:     NewLayout(opts.Rows, opts.Columns, opts.Width, opts.Height),
		Focus:      NewFocusShift(src.Width, cropW, views, opts.Focus),
		FlipMethod: "vflip",
	}
	// ffmpeg tiles from the top-left, quilts from the bottom-left. Flipping
	// before and after tiling fixes the order; the axis picks the direction.
	if opts.Invert {
		p.FlipMethod = "hflip"
	}
	if opts.Rail {
		sel := SampleFrames(src.FrameCount, views)
		p.Selection = &sel
	}
	return p, nil
}

// ShortRail reports whether the rail video has fewer usable frames than the
// quilt has views, returning how many will actually be selected.
func (p *Plan) ShortRail() (int, bool) {
	if p.Selection == nil {
		return 0, false
	}
	n := p.Selection.Count(p.Source.FrameCount)
	return n, n < p.Options.Views()
}

// Graph builds the filter chain:
// [concat] [select] pad zoompan crop scale flip tile flip.
func (p *Plan) Graph() ffmpeg.Graph {
	g := ffmpeg.Graph{Inputs: p.Inputs}

	if len(p.Inputs) > 1 {
		g.Then(ffmpeg.NewFilter("concat").With("n", len(p.Inputs)).With("v", 1).With("a", 0))
	}
	if p.Selection != nil {
		g.Then(ffmpeg.NewFilter("select", p.Selection.SelectExpr()))
	}

	pf := ffmpeg.FormatFloat(p.Focus.PaddingFactor)
	g.Then(
		// Pad every side so zoompan can pan past the original edges.
		ffmpeg.NewFilter("pad").
			With("width", "iw * "+pf).
			With("height", "ih * "+pf).
			With("x", "(ow - iw) / 2").
			With("y", "(oh - ih) / 2"),
		ffmpeg.NewFilter("zoompan").
			With("z", p.Focus.PaddingFactor).
			With("x", fmt.Sprintf("if(eq(time,0),%s,px + %s)",
				ffmpeg.FormatFloat(p.Focus.StartX), ffmpeg.FormatFloat(p.Focus.ShiftPerView))).
			With("y", "ih/2-(ih/zoom/2)").
			With("d", 1).
			With("s", fmt.Sprintf("%dx%d", p.Source.Width, p.Source.Height)),
		ffmpeg.NewFilter("crop").
			With("w", p.CropWidth).
			With("h", p.CropHeight),
		ffmpeg.NewFilter("scale").
			With("width", p.Layout.TileWidth).
			With("height", p.Layout.TileHeight),
		ffmpeg.NewFilter(p.FlipMethod),
		ffmpeg.NewFilter("tile").With("layout", fmt.Sprintf("%dx%d", p.Options.Columns, p.Options.Rows)),
		ffmpeg.NewFilter(p.FlipMethod),
	)
	return g
}

// Command returns the ffmpeg invocation that renders the quilt to output.
func (p *Plan) Command(output string, overwrite, verbose bool) ffmpeg.Command {
	return ffmpeg.Command{
		Graph:     p.Graph(),
		Output:    output,
		Width:     p.Options.Width,
		Height:    p.Options.Height,
		Frames:    1,
		Overwrite: overwrite,
		Verbose:   verbose,
	}
}
