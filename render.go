package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkg/browser"

	"github.com/stevecastle/lkgquilt/appconfig"
	"github.com/stevecastle/lkgquilt/deps"
	"github.com/stevecastle/lkgquilt/ffmpeg"
	"github.com/stevecastle/lkgquilt/history"
	"github.com/stevecastle/lkgquilt/media"
	"github.com/stevecastle/lkgquilt/preview"
	"github.com/stevecastle/lkgquilt/publish"
	"github.com/stevecastle/lkgquilt/quilt"
)

// RenderCmd builds one quilt. Zero-valued geometry flags fall back to the
// preset, then to the config.
type RenderCmd struct {
	Rows    int     `short:"r" help:"Grid rows (default ${rows})."`
	Columns int     `short:"c" help:"Grid columns (default ${columns})."`
	Aspect  float64 `short:"a" help:"Crop aspect ratio, width/height (default ${aspect})."`
	Width   int     `short:"W" help:"Quilt width in pixels (default ${width})."`
	Height  int     `short:"H" help:"Quilt height in pixels (default ${height})."`

	Input  []string `arg:"" optional:"" default:"frame_%04d.png" help:"Files, or a printf pattern such as frame_%04d.png."`
	Output string   `short:"o" help:"Output file name template (default ${template})."`

	Invert    bool    `help:"Reverse the view order."`
	Focus     float64 `help:"Focal plane shift; larger values pan each view further."`
	Rail      bool    `help:"Pick evenly spaced frames from a rail video as the views."`
	Overwrite bool    `help:"Replace the output if it exists."`
	Preset    string  `help:"Display preset from the config (${presets})."`
	Preview   int     `placeholder:"WIDTH" help:"Also write a thumbnail of this width next to the quilt."`
	Upload    string  `placeholder:"s3://bucket/prefix" help:"Publish the quilt to S3 after rendering."`
	Open      bool    `help:"Open the quilt with the system viewer."`
	DryRun    bool    `help:"Print the ffmpeg command instead of running it."`
}

// options merges flags over the preset and config defaults and returns the
// output name template.
func (c *RenderCmd) options(cfg appconfig.Config) (quilt.Options, string, error) {
	base := appconfig.Preset{
		Rows:    cfg.Rows,
		Columns: cfg.Columns,
		Aspect:  cfg.Aspect,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}
	if c.Preset != "" {
		p, ok := cfg.LookupPreset(c.Preset)
		if !ok {
			return quilt.Options{}, "", fmt.Errorf("unknown preset %q (available: %s)", c.Preset, strings.Join(cfg.PresetNames(), ", "))
		}
		base = p
	}

	opts := quilt.Options{
		Rows:    orInt(c.Rows, base.Rows),
		Columns: orInt(c.Columns, base.Columns),
		Aspect:  orFloat(c.Aspect, base.Aspect),
		Width:   orInt(c.Width, base.Width),
		Height:  orInt(c.Height, base.Height),
		Invert:  c.Invert,
		Focus:   c.Focus,
		Rail:    c.Rail,
	}

	tmpl := c.Output
	if tmpl == "" {
		tmpl = cfg.OutputTemplate
	}
	if tmpl == "" {
		tmpl = quilt.DefaultOutputTemplate
	}
	return opts, tmpl, opts.Validate()
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func (c *RenderCmd) Run(ctx context.Context, app *App) (err error) {
	opts, tmpl, err := c.options(app.Config)
	if err != nil {
		return err
	}
	var target publish.Target
	if c.Upload != "" {
		if target, err = publish.ParseS3URL(c.Upload); err != nil {
			return err
		}
	}
	// A missing input is reported before a missing ffmpeg.
	if err := media.CheckInputsExist(c.Input); err != nil {
		return err
	}
	if err := deps.EnsureAvailable(deps.FFmpegID); err != nil {
		return err
	}

	info, err := media.NewProber(app.Logger, app.Verbose).Probe(ctx, c.Input, opts.Rail)
	if err != nil {
		return err
	}
	app.Logger.Info("probed input", "input", c.Input[0], "info", info.String())

	plan, err := quilt.NewPlan(opts, c.Input, info)
	if err != nil {
		return err
	}
	if n, short := plan.ShortRail(); short {
		app.Logger.Warn("rail video has fewer frames than the quilt has views, the remaining tiles stay empty",
			"frames", info.FrameCount, "views", opts.Views(), "selected", n)
	}
	if plan.Selection != nil {
		app.Logger.Debug("frame selection", "interval", plan.Selection.Interval,
			"start", plan.Selection.StartFrame, "end", plan.Selection.EndFrame)
	}

	output, err := quilt.FormatOutputName(tmpl, quilt.NewNameFields(opts, c.Input))
	if err != nil {
		return err
	}
	cmd := plan.Command(output, c.Overwrite, app.Verbose)
	if app.Verbose {
		if err := cmd.Graph.Dump(app.Stderr, output); err != nil {
			return err
		}
	}
	if c.DryRun {
		fmt.Fprintln(app.Stdout, cmd.String())
		return nil
	}
	if !c.Overwrite && media.CheckFileExists(output) {
		return fmt.Errorf("%s already exists, pass --overwrite to replace it", output)
	}

	finish := recordRun(ctx, app, c.Input, output)
	defer func() { finish(err) }()

	if err := ffmpeg.Run(ctx, cmd, app.Logger); err != nil {
		if ffmpeg.IsEngineError(err) && !app.Verbose {
			app.Logger.Info("rerun with -v to see the full ffmpeg output")
		}
		return err
	}
	c.afterRender(app, output, opts)

	if c.Upload != "" {
		up, err := publish.NewUploader(ctx, app.Config.S3, app.Logger)
		if err != nil {
			return err
		}
		dest, err := up.Upload(ctx, target, output)
		if err != nil {
			return err
		}
		app.Logger.Info("uploaded quilt", "dest", dest)
	}
	if c.Open {
		if err := browser.OpenFile(output); err != nil {
			app.Logger.Warn("could not open quilt", "error", err)
		}
	}

	fmt.Fprintln(app.Stdout, output)
	return nil
}

// afterRender checks the written quilt and makes the optional thumbnail.
// Neither is fatal: the quilt itself was rendered.
func (c *RenderCmd) afterRender(app *App, output string, opts quilt.Options) {
	if format, err := preview.Verify(output, opts.Width, opts.Height); err != nil {
		app.Logger.Warn("could not verify quilt", "error", err)
	} else {
		app.Logger.Debug("verified quilt", "format", format)
	}
	if c.Preview > 0 {
		thumb := preview.Path(output)
		if err := preview.Thumbnail(output, thumb, c.Preview); err != nil {
			app.Logger.Warn("could not write preview", "error", err)
		} else {
			app.Logger.Info("wrote preview", "path", thumb)
		}
	}
}

// recordRun stores the render in the run history and returns the function
// that records its outcome. History failures are only logged.
func recordRun(ctx context.Context, app *App, inputs []string, output string) func(error) {
	noop := func(error) {}
	if app.Config.HistoryDBPath == "" {
		return noop
	}
	store, err := history.Open(app.Config.HistoryDBPath)
	if err != nil {
		app.Logger.Warn("run history unavailable", "error", err)
		return noop
	}
	run, err := store.Start(ctx, app.Args, inputs, output)
	if err != nil {
		app.Logger.Warn("could not record run", "error", err)
		store.Close()
		return noop
	}
	return func(runErr error) {
		defer store.Close()
		var engineErr *ffmpeg.EngineError
		if errors.As(runErr, &engineErr) {
			run.Log = engineErr.Stderr
		}
		// The run may have ended because ctx was cancelled.
		if err := store.Finish(context.WithoutCancel(ctx), run, runErr); err != nil {
			app.Logger.Warn("could not record run", "error", err)
		}
	}
}
