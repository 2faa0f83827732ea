package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"
)

// LaunchErrorKind classifies why a stage could not be started.
type LaunchErrorKind int

const (
	NotFound LaunchErrorKind = iota // no such program, or not on PATH
	Denied                          // found but not executable by us
	Other                           // any other OS-level failure
)

func (k LaunchErrorKind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case Denied:
		return "denied"
	default:
		return "other"
	}
}

// LaunchError reports a stage that failed to start.
type LaunchError struct {
	Kind LaunchErrorKind
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %s: %v", e.Name, e.Kind, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Message is the line printed to the user for this failure.
func (e *LaunchError) Message() string {
	if e.Kind == NotFound {
		return e.Name + ": command not found"
	}
	return "Error: " + e.Err.Error()
}

func classify(name string, err error) *LaunchError {
	kind := Other
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENOENT):
		kind = NotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		kind = Denied
	}
	return &LaunchError{Kind: kind, Name: name, Err: err}
}

// Process is a launched stage. It is waited on at most once.
type Process struct {
	Stage int
	Name  string

	cmd      *exec.Cmd
	waitOnce sync.Once
	code     int
	err      error
}

// Pid returns the operating system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Wait blocks until the process exits and returns its exit code. A non-zero
// exit is not an error; the error reports a failure to reap. Later calls
// return the first call's result without waiting again.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			p.code = exitErr.ExitCode()
		default:
			p.code = -1
			p.err = err
		}
	})
	return p.code, p.err
}

// Kill requests forceful termination. A process that has already exited is
// not an error.
func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Launcher starts external programs bound to a given input and output.
type Launcher struct {
	// Stderr receives every child's standard error. Nil discards it.
	Stderr io.Writer
}

// Launch starts c as stage number stage. Its standard streams are set
// before the child runs; *os.File bindings are inherited as descriptors.
// On failure the error is always a *LaunchError.
func (l *Launcher) Launch(ctx context.Context, stage int, c Command, b Binding) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = b.In
	cmd.Stdout = b.Out
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, classify(c.Name, err)
	}
	return &Process{Stage: stage, Name: c.Name, cmd: cmd}, nil
}
