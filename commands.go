package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/stevecastle/lkgquilt/deps"
	"github.com/stevecastle/lkgquilt/downloads"
	"github.com/stevecastle/lkgquilt/history"
	"github.com/stevecastle/lkgquilt/media"
	"github.com/stevecastle/lkgquilt/platform"
)

// CLI is the command line. Rendering runs when no command is named.
type CLI struct {
	Verbose bool `short:"v" help:"Verbose ffmpeg output, filter graph dump and debug logging."`

	Render  RenderCmd  `cmd:"" default:"withargs" help:"Render a quilt (default command)."`
	Probe   ProbeCmd   `cmd:"" help:"Print what the prober sees in an input."`
	Deps    DepsCmd    `cmd:"" help:"Check or install ffmpeg."`
	History HistoryCmd `cmd:"" help:"List previous renders."`
}

// ProbeCmd prints media.Info for an input.
type ProbeCmd struct {
	Input []string `arg:"" help:"File, list of files or printf pattern."`
	Count bool     `help:"Decode the input to count frames instead of trusting metadata."`
}

func (c *ProbeCmd) Run(ctx context.Context, app *App) error {
	if err := media.CheckInputsExist(c.Input); err != nil {
		return err
	}
	if err := deps.EnsureAvailable(deps.FFmpegID); err != nil {
		return err
	}
	info, err := media.NewProber(app.Logger, app.Verbose).Probe(ctx, c.Input, c.Count)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Stdout, "size:     %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(app.Stdout, "frames:   %d\n", info.FrameCount)
	fmt.Fprintf(app.Stdout, "rate:     %.3f fps\n", info.FrameRate)
	fmt.Fprintf(app.Stdout, "rotation: %d\n", info.Rotation)
	return nil
}

// DepsCmd groups the dependency commands.
type DepsCmd struct {
	Check   DepsCheckCmd   `cmd:"" default:"1" help:"Report whether ffmpeg and ffprobe are usable."`
	Install DepsInstallCmd `cmd:"" help:"Download ffmpeg into the application data directory."`
}

type DepsCheckCmd struct{}

func (c *DepsCheckCmd) Run(ctx context.Context, app *App) error {
	missing := deps.GetMissing(ctx)
	isMissing := make(map[string]bool, len(missing))
	for _, d := range missing {
		isMissing[d.ID] = true
	}

	all := deps.GetAll()
	w := tabwriter.NewWriter(app.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEPENDENCY\tSTATUS\tVERSION\tLOCATION")
	for _, d := range all {
		status, version, location := deps.StatusNotInstalled, "", ""
		if !isMissing[d.ID] {
			_, version, _ = d.Check(ctx)
			status = deps.StatusInstalled
			if d.LatestVersion != "" && version != "unknown" && version != d.LatestVersion {
				status = deps.StatusOutdated
			}
			if len(d.Executables) > 0 {
				location, _ = deps.ResolveExecutable(d.ID, d.Executables[0])
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, status, version, location)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d of %d dependencies missing, run `%s deps install`", len(missing), len(all), platform.AppName)
	}
	return nil
}

type DepsInstallCmd struct {
	URL string `help:"Archive to install instead of the default build for this platform."`
}

func (c *DepsInstallCmd) Run(ctx context.Context, app *App) error {
	var last downloads.DownloadStatus
	err := deps.Install(ctx, deps.FFmpegID, c.URL, func(p downloads.Progress) {
		if p.Status != last || app.Verbose {
			fmt.Fprintln(app.Stderr, p.String())
			last = p.Status
		}
	})
	if err != nil {
		return err
	}
	dir, err := deps.GetInstallPath(deps.FFmpegID)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Stdout, "ffmpeg installed to %s\n", dir)
	return nil
}

// HistoryCmd lists recorded renders.
type HistoryCmd struct {
	Limit int  `default:"20" help:"Number of runs to show; 0 shows all."`
	Prune int  `help:"Delete all but the newest N runs first." placeholder:"N"`
	Args  bool `help:"Show the arguments of each run."`
}

func (c *HistoryCmd) Run(ctx context.Context, app *App) error {
	if app.Config.HistoryDBPath == "" {
		return errors.New("run history is disabled in the config")
	}
	store, err := history.Open(app.Config.HistoryDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Prune > 0 {
		n, err := store.Prune(ctx, c.Prune)
		if err != nil {
			return err
		}
		app.Logger.Info("pruned run history", "removed", n)
	}

	runs, err := store.List(ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(app.Stdout, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		line := r.Summary()
		if d := r.Duration(); d > 0 {
			line += "  " + humanize.FtoaWithDigits(d.Seconds(), 2) + "s"
		}
		fmt.Fprintln(app.Stdout, line)
		if c.Args {
			fmt.Fprintf(app.Stdout, "    %v\n", r.Args)
		}
	}
	return nil
}
