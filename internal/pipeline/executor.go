package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/marcelocantos/pipesh/internal/builtin"
)

// ErrEmptyPipeline is reported for a line with no runnable stage.
var ErrEmptyPipeline = errors.New("empty pipeline")

// State is the lifecycle position of one pipeline run.
type State int

const (
	Building State = iota
	Running
	Complete
	Aborting
	Aborted
	Skipped // blank line: nothing to run
	Builtin // single stage handled in-process
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Aborting:
		return "aborting"
	case Aborted:
		return "aborted"
	case Skipped:
		return "skipped"
	case Builtin:
		return "builtin"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result summarises a finished run.
type Result struct {
	State     State
	Stages    int
	Launched  int
	Endpoints int
	Err       error // the launch error that aborted the run, if any
}

// Executor runs pipelines one at a time.
type Executor struct {
	Stdin  io.Reader
	Stdout io.Writer // children's output and the shell's own messages
	Stderr io.Writer

	Dispatcher *builtin.Dispatcher
	Launcher   *Launcher
	Logger     *slog.Logger
}

// NewExecutor wires an executor with the given streams and dispatcher.
func NewExecutor(stdin io.Reader, stdout, stderr io.Writer, d *builtin.Dispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
		Dispatcher: d,
		Launcher:   &Launcher{Stderr: stderr},
		Logger:     logger,
	}
}

// run is the state owned by one Execute call.
type run struct {
	state State
	plan  *Plan
	procs []*Process
	log   *slog.Logger
}

func (r *run) enter(s State) {
	r.log.Debug("pipeline state", "from", r.state, "to", s)
	r.state = s
}

// release closes one parent-side pipe end, logging failures.
func (r *run) release(h *Handle, what string, endpoint int) {
	closed, err := h.Close()
	if err != nil {
		r.log.Warn("close pipe end", "end", what, "endpoint", endpoint, "err", err)
		return
	}
	if closed {
		r.log.Debug("closed pipe end", "end", what, "endpoint", endpoint)
	}
}

// Execute runs p to completion. Blank stages are skipped. A single stage is
// offered to the builtin dispatcher first. Launch failures are printed and
// abort the run; nothing is returned as an error.
func (e *Executor) Execute(ctx context.Context, p Pipeline) Result {
	p = p.Runnable()
	n := len(p.Stages)
	if n == 0 {
		return Result{State: Skipped, Err: ErrEmptyPipeline}
	}

	if n == 1 && e.Dispatcher != nil {
		c := p.Stages[0]
		if e.Dispatcher.TryExecute(c.Name, c.Args) == builtin.Handled {
			return Result{State: Builtin, Stages: 1}
		}
	}

	r := &run{
		state: Building,
		plan:  NewPlan(n, e.Stdin, e.Stdout),
		log:   e.Logger.With("stages", n),
	}

	for i, c := range p.Stages {
		proc, err := e.launchStage(ctx, r, i, c)
		if err != nil {
			e.abort(r, err)
			return e.result(r, err)
		}
		r.procs = append(r.procs, proc)
		r.handOff(i)
	}

	r.enter(Running)
	for _, proc := range r.procs {
		code, err := proc.Wait()
		if err != nil {
			r.log.Warn("wait failed", "stage", proc.Stage, "name", proc.Name, "err", err)
			continue
		}
		r.log.Debug("stage exited", "stage", proc.Stage, "name", proc.Name, "code", code)
	}

	if err := r.plan.Close(); err != nil {
		r.log.Warn("release endpoints", "err", err)
	}
	r.enter(Complete)
	return e.result(r, nil)
}

func (e *Executor) launchStage(ctx context.Context, r *run, i int, c Command) (*Process, error) {
	b, err := r.plan.Bind(i)
	if err != nil {
		return nil, &LaunchError{Kind: Other, Name: c.Name, Err: err}
	}
	proc, err := e.Launcher.Launch(ctx, i, c, b)
	if err != nil {
		return nil, err
	}
	r.log.Debug("launched stage", "stage", i, "name", c.Name, "pid", proc.Pid())
	return proc, nil
}

// handOff closes the parent's copies of the ends stage i now holds: the
// write end it produces into, and the read end it consumes from. The read
// end of endpoint i stays open until stage i+1 has inherited it.
func (r *run) handOff(i int) {
	eps := r.plan.Endpoints()
	if i < len(eps) {
		r.release(eps[i].W, "write", i)
	}
	if i > 0 {
		r.release(eps[i-1].R, "read", i-1)
	}
}

// abort kills every launched stage and releases all endpoints. Killed
// children are reaped in the background; the run does not wait for them.
func (e *Executor) abort(r *run, err error) {
	r.enter(Aborting)

	var le *LaunchError
	if errors.As(err, &le) {
		fmt.Fprintln(e.Stdout, le.Message())
	} else {
		fmt.Fprintf(e.Stdout, "Error: %v\n", err)
	}

	for _, proc := range r.procs {
		if kerr := proc.Kill(); kerr != nil {
			r.log.Warn("kill stage", "stage", proc.Stage, "name", proc.Name, "err", kerr)
		}
		go proc.Wait()
	}

	if cerr := r.plan.Close(); cerr != nil {
		r.log.Warn("release endpoints", "err", cerr)
	}
	r.enter(Aborted)
}

func (e *Executor) result(r *run, err error) Result {
	return Result{
		State:     r.state,
		Stages:    r.plan.Stages(),
		Launched:  len(r.procs),
		Endpoints: len(r.plan.Endpoints()),
		Err:       err,
	}
}
