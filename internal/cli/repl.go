package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// Shell is the interactive read-execute loop.
type Shell struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Prompt string

	Executor *pipeline.Executor
	Audit    *audit.Logger // nil disables run history
	Logger   *slog.Logger
}

// ChildInput returns the reader children should inherit as standard input.
// Only a real file is passed on; anything else would let children consume
// lines meant for the shell.
func ChildInput(in io.Reader) io.Reader {
	if f, ok := in.(*os.File); ok {
		return f
	}
	return nil
}

// Run prompts, reads and executes lines until end of input. It returns the
// process exit status.
func (s *Shell) Run(ctx context.Context) int {
	sc := bufio.NewScanner(s.In)
	for {
		fmt.Fprint(s.Out, s.Prompt)
		if !sc.Scan() {
			break
		}
		s.Exec(ctx, sc.Text())
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(s.Err, "pipesh: read: %v\n", err)
		return 1
	}
	return 0
}

// Exec runs one input line and records it in the run history.
func (s *Shell) Exec(ctx context.Context, line string) pipeline.Result {
	p := pipeline.Tokenize(line)
	start := time.Now()
	res := s.Executor.Execute(ctx, p)
	if res.State == pipeline.Skipped {
		return res
	}
	s.record(line, p.Runnable().Names(), res, time.Since(start))
	return res
}

func (s *Shell) record(line string, stages []string, res pipeline.Result, d time.Duration) {
	if s.Audit == nil {
		return
	}
	r := audit.Record{
		Line:     line,
		Stages:   stages,
		State:    res.State.String(),
		Launched: res.Launched,
		Duration: d,
	}
	if res.Err != nil {
		var le *pipeline.LaunchError
		if errors.As(res.Err, &le) {
			r.Error = le.Message()
		} else {
			r.Error = res.Err.Error()
		}
	}
	r.Cwd, _ = os.Getwd()

	if err := s.Audit.Log(r); err != nil {
		s.logger().Warn("audit", "err", err)
	}
}

func (s *Shell) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
