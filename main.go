// lkg-quilt renders lightfield quilts for Looking Glass displays from a
// sequence of views, a list of images or a rail video, using ffmpeg.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/stevecastle/lkgquilt/appconfig"
	"github.com/stevecastle/lkgquilt/deps"
	"github.com/stevecastle/lkgquilt/media"
	"github.com/stevecastle/lkgquilt/platform"
)

const description = `Generate a lightfield quilt from an image sequence, a list of views or a rail video.

Views are cropped to the target aspect, optionally shifted to move the focal
plane, then tiled from the bottom-left corner into a single image.`

const (
	red   = "\033[31m"
	reset = "\033[0m"
)

// App carries what every command needs.
type App struct {
	Config  appconfig.Config
	Logger  *slog.Logger
	Stdout  io.Writer
	Stderr  io.Writer
	Args    []string
	Verbose bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, cfgPath, err := appconfig.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v, using defaults\n", err)
		cfg = appconfig.Get()
	}

	var cli CLI
	parser, err := newParser(&cli, cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		var perr *kong.ParseError
		if errors.As(err, &perr) && perr.Context != nil {
			_ = perr.Context.PrintUsage(false)
		}
		return 1
	}

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Debug("loaded config", "path", cfgPath)

	deps.SetExecutableOverride("ffmpeg", cfg.FFmpegPath)
	deps.SetExecutableOverride("ffprobe", cfg.FFprobePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Stdout:  stdout,
		Stderr:  stderr,
		Args:    args,
		Verbose: cli.Verbose,
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(app); err != nil {
		reportError(kctx, stderr, cli.Render.Input, err)
		return 1
	}
	return 0
}

// newParser builds the kong parser. Flag help shows the configured defaults.
func newParser(cli *CLI, cfg appconfig.Config, stdout, stderr io.Writer, options ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name(platform.AppName),
		kong.Description(description),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{
			"rows":     strconv.Itoa(cfg.Rows),
			"columns":  strconv.Itoa(cfg.Columns),
			"aspect":   strconv.FormatFloat(cfg.Aspect, 'f', -1, 64),
			"width":    strconv.Itoa(cfg.Width),
			"height":   strconv.Itoa(cfg.Height),
			"template": cfg.OutputTemplate,
			"presets":  strings.Join(cfg.PresetNames(), ", "),
		},
	}, options...)...)
}

// reportError prints err. A missing input also gets the usage text, like
// any other command line mistake.
func reportError(kctx *kong.Context, stderr io.Writer, inputs []string, err error) {
	color := func(s string) string { return s }
	if f, ok := stderr.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		color = func(s string) string { return red + s + reset }
	}

	if errors.Is(err, media.ErrNoInput) {
		fmt.Fprintln(stderr, color(fmt.Sprintf("Error: Unable to find any files in the list or pattern matching '%s'.", strings.Join(inputs, " "))))
		fmt.Fprintln(stderr)
		_ = kctx.PrintUsage(false)
		return
	}
	fmt.Fprintln(stderr, color("Error: "+err.Error()))
}
