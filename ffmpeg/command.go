package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stevecastle/lkgquilt/deps"
)

// stderrTail is how many trailing ffmpeg stderr lines an error carries.
const stderrTail = 20

// Command is a single ffmpeg invocation rendering Graph into Output.
type Command struct {
	Graph     Graph
	Output    string
	Width     int
	Height    int
	Frames    int // 0 means 1
	Overwrite bool
	Verbose   bool
}

// LogLevel is the -loglevel passed to ffmpeg.
func (c Command) LogLevel() string {
	if c.Verbose {
		return "verbose"
	}
	return "error"
}

// Args returns the ffmpeg argument list, without the executable.
func (c Command) Args() []string {
	args := []string{"-hide_banner", "-loglevel", c.LogLevel()}
	for _, in := range c.Graph.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", c.Graph.String(),
		"-map", "["+OutputLabel+"]",
	)
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	frames := c.Frames
	if frames <= 0 {
		frames = 1
	}
	args = append(args, "-frames:v", strconv.Itoa(frames))
	if c.Overwrite {
		args = append(args, "-y")
	} else {
		args = append(args, "-n")
	}
	return append(args, c.Output)
}

// String renders the command line for display. Arguments containing shell
// metacharacters are single-quoted.
func (c Command) String() string {
	parts := []string{"ffmpeg"}
	for _, a := range c.Args() {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()[]*?!#~%{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// EngineError is returned when ffmpeg exits unsuccessfully.
type EngineError struct {
	Err    error
	Stderr []string
}

func (e *EngineError) Error() string {
	msg := "ffmpeg failed: " + e.Err.Error()
	if len(e.Stderr) > 0 {
		msg += "\n" + strings.Join(e.Stderr, "\n")
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// Run executes c, streaming ffmpeg's stderr into logger line by line.
func Run(ctx context.Context, c Command, logger *slog.Logger) error {
	cmd, err := deps.GetExec(ctx, deps.FFmpegID, "ffmpeg", c.Args()...)
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	logger.Debug("running ffmpeg", "path", cmd.Path, "args", c.Args())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg failed to start: %w", err)
	}

	// Wait closes the pipe, so stderr must be drained first.
	tail := scanLines(stderr, stderrTail, func(line string) {
		logger.Debug("ffmpeg", "line", line)
	})

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return &EngineError{Err: err, Stderr: tail}
	}
	return nil
}

// scanLines calls fn for every line of r and returns the last keep lines.
func scanLines(r io.Reader, keep int, fn func(string)) []string {
	var tail []string
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if fn != nil {
			fn(line)
		}
		tail = append(tail, line)
		if len(tail) > keep {
			tail = tail[1:]
		}
	}
	return tail
}

// IsEngineError reports whether err came from a failed ffmpeg run.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
