package builtin

import (
	"errors"
	"os"
)

// Cd changes the shell's working directory. With no argument it changes to
// the home directory.
type Cd struct {
	// Home returns the home directory. Nil reads $HOME.
	Home func() string
}

var _ Builtin = (*Cd)(nil)

func (c *Cd) Name() string        { return "cd" }
func (c *Cd) Description() string { return "change the working directory (default $HOME)" }
func (c *Cd) Kind() Kind          { return KindCd }

func (c *Cd) Run(args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	} else {
		dir = c.home()
		if dir == "" {
			return errors.New("HOME not set")
		}
	}
	return os.Chdir(dir)
}

func (c *Cd) home() string {
	if c.Home != nil {
		return c.Home()
	}
	return os.Getenv("HOME")
}

// Exit terminates the whole shell immediately. Nothing launched earlier is
// cleaned up.
type Exit struct {
	// Exit ends the process. Nil uses os.Exit.
	Exit func(code int)
}

var _ Builtin = (*Exit)(nil)

func (e *Exit) Name() string        { return "exit" }
func (e *Exit) Description() string { return "terminate the shell" }
func (e *Exit) Kind() Kind          { return KindExit }

func (e *Exit) Run([]string) error {
	if e.Exit != nil {
		e.Exit(0)
		return nil
	}
	os.Exit(0)
	return nil
}

// RegisterAll adds the standard builtins. exit calls exitFn, or os.Exit when
// exitFn is nil.
func RegisterAll(r *Registry, exitFn func(int)) {
	r.Register(&Cd{})
	r.Register(&Exit{Exit: exitFn})
}
