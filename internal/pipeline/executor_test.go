package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelocantos/pipesh/internal/builtin"
)

// testExecutor returns an executor writing to a buffer, with exit recorded
// instead of terminating the test binary. Children get no stderr so that
// os/exec opens no copy pipes that would outlive an aborted run.
func testExecutor(t *testing.T) (*Executor, *bytes.Buffer, *[]int) {
	t.Helper()
	var out bytes.Buffer
	var exits []int
	reg := builtin.NewRegistry()
	builtin.RegisterAll(reg, func(code int) { exits = append(exits, code) })
	e := NewExecutor(nil, &out, nil, builtin.NewDispatcher(reg, &out), nil)
	return e, &out, &exits
}

// openPipes counts the pipe descriptors open in this process. Other
// descriptors, such as the pidfd os/exec holds until a child is reaped,
// are not counted.
func openPipes(t *testing.T) int {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("descriptor counting needs /proc/self/fd")
	}
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err != nil {
			continue // the descriptor ReadDir itself used
		}
		if strings.HasPrefix(target, "pipe:") {
			n++
		}
	}
	return n
}

// running reports whether a child of this process is still executing with
// the given command line. Reaped and zombie children have no command line.
func running(t *testing.T, argv ...string) bool {
	t.Helper()
	want := strings.Join(argv, "\x00") + "\x00"
	dirs, err := os.ReadDir("/proc")
	if err != nil {
		t.Errorf("list processes: %v", err)
		return true
	}
	for _, d := range dirs {
		if _, err := strconv.Atoi(d.Name()); err != nil {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join("/proc", d.Name(), "cmdline"))
		if err != nil {
			continue
		}
		if string(cmdline) == want {
			return true
		}
	}
	return false
}

func TestExecuteSingleCommand(t *testing.T) {
	requireTools(t, "echo")
	e, out, _ := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("echo hello world"))
	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 1, res.Launched)
	assert.Zero(t, res.Endpoints)
	assert.Equal(t, "hello world\n", out.String())
}

func TestExecutePipeline(t *testing.T) {
	requireTools(t, "echo", "tr")
	e, out, _ := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("echo hi | tr a-z A-Z"))
	require.NoError(t, res.Err)
	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 2, res.Launched)
	assert.Equal(t, 1, res.Endpoints)
	assert.Equal(t, "HI\n", out.String())
}

func TestExecuteFourStagesLeaksNothing(t *testing.T) {
	requireTools(t, "echo", "tr", "cat")
	e, out, _ := testExecutor(t)

	// Warm up so lazily created runtime descriptors are not counted.
	e.Execute(context.Background(), Tokenize("echo warm | cat"))
	out.Reset()

	before := openPipes(t)
	res := e.Execute(context.Background(), Tokenize("echo abc | tr a-z A-Z | cat | tr A-Z x-z"))
	after := openPipes(t)

	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 4, res.Launched)
	assert.Equal(t, 3, res.Endpoints)
	assert.Equal(t, "xyz\n", out.String())
	assert.Equal(t, before, after, "pipe descriptors leaked")
}

func TestExecuteReaderSeesEOF(t *testing.T) {
	requireTools(t, "echo", "cat", "wc")
	e, out, _ := testExecutor(t)

	// wc only finishes once every write end of its input is closed.
	res := e.Execute(context.Background(), Tokenize("echo one two | cat | cat | wc -w"))
	assert.Equal(t, Complete, res.State)
	assert.Contains(t, out.String(), "2")
}

func TestExecuteFirstStageNotFound(t *testing.T) {
	requireTools(t, "echo")
	e, out, _ := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("doesnotexist | echo x"))
	assert.Equal(t, Aborted, res.State)
	assert.Zero(t, res.Launched, "echo must never be launched")
	assert.Equal(t, "doesnotexist: command not found\n", out.String())

	var le *LaunchError
	require.True(t, errors.As(res.Err, &le))
	assert.Equal(t, NotFound, le.Kind)
}

func TestExecuteLaterStageNotFoundAborts(t *testing.T) {
	requireTools(t, "sleep")
	e, out, _ := testExecutor(t)

	before := openPipes(t)
	res := e.Execute(context.Background(), Tokenize("sleep 30 | doesnotexist | cat"))
	after := openPipes(t)

	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, 1, res.Launched)
	assert.Equal(t, 2, res.Endpoints, "endpoints for stages 0 and 1 only")
	assert.Equal(t, "doesnotexist: command not found\n", out.String())
	assert.Equal(t, before, after, "aborted run leaked pipes")
}

func TestExecuteAbortKillsLaunchedStages(t *testing.T) {
	requireTools(t, "sleep")
	if runtime.GOOS != "linux" {
		t.Skip("process lookup needs /proc")
	}
	e, _, _ := testExecutor(t)

	start := time.Now()
	res := e.Execute(context.Background(), Tokenize("sleep 4242 | sleep 4243 | doesnotexist"))
	require.Equal(t, Aborted, res.State)
	require.Equal(t, 2, res.Launched)
	assert.Less(t, time.Since(start), 5*time.Second, "abort must not wait for the sleeps")

	assert.Eventually(t, func() bool {
		return !running(t, "sleep", "4242") && !running(t, "sleep", "4243")
	}, 2*time.Second, 20*time.Millisecond, "launched stages still running after abort")
}

func TestExecuteSingleNotFound(t *testing.T) {
	e, out, _ := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("doesnotexist --flag"))
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, "doesnotexist: command not found\n", out.String())
}

func TestExecuteBlankLine(t *testing.T) {
	e, out, _ := testExecutor(t)

	for _, line := range []string{"", "   ", " | | "} {
		res := e.Execute(context.Background(), Tokenize(line))
		assert.Equal(t, Skipped, res.State, "line %q", line)
		assert.ErrorIs(t, res.Err, ErrEmptyPipeline)
		assert.Zero(t, res.Launched)
	}
	assert.Empty(t, out.String())
}

func TestExecuteSkipsBlankStages(t *testing.T) {
	requireTools(t, "echo", "tr")
	e, out, _ := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("echo hi | | tr a-z A-Z |"))
	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 2, res.Stages)
	assert.Equal(t, "HI\n", out.String())
}

func TestExecuteCdBuiltin(t *testing.T) {
	e, out, _ := testExecutor(t)

	old, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(old) })

	dir := t.TempDir()
	res := e.Execute(context.Background(), Tokenize("cd "+dir))
	assert.Equal(t, Builtin, res.State)
	assert.Empty(t, out.String())

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, evalDir(t, dir), evalDir(t, wd))
}

func TestExecuteCdHome(t *testing.T) {
	e, _, _ := testExecutor(t)

	old, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(old) })

	home := t.TempDir()
	t.Setenv("HOME", home)

	res := e.Execute(context.Background(), Tokenize("cd"))
	assert.Equal(t, Builtin, res.State)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, evalDir(t, home), evalDir(t, wd))
}

func TestExecuteCdFailureKeepsDirectory(t *testing.T) {
	e, out, exits := testExecutor(t)

	before, err := os.Getwd()
	require.NoError(t, err)

	res := e.Execute(context.Background(), Tokenize("cd /nonexistent-pipesh-dir"))
	assert.Equal(t, Builtin, res.State)
	assert.Contains(t, out.String(), "cd: ")
	assert.Contains(t, out.String(), "no such file or directory")
	assert.Empty(t, *exits)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestExecuteExitBuiltin(t *testing.T) {
	e, _, exits := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("exit"))
	assert.Equal(t, Builtin, res.State)
	assert.Equal(t, []int{0}, *exits)
}

func TestBuiltinInsidePipelineIsExternal(t *testing.T) {
	requireTools(t, "echo")
	if _, err := exec.LookPath("exit"); err == nil {
		t.Skip("an exit program is on PATH")
	}
	e, out, exits := testExecutor(t)

	res := e.Execute(context.Background(), Tokenize("echo x | exit"))
	assert.Empty(t, *exits, "exit in a pipeline must not run in-process")
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, 1, res.Launched, "echo is launched before exit fails")
	assert.Equal(t, "exit: command not found\n", out.String())
}

func TestExecuteCancelledContextDoesNotHang(t *testing.T) {
	requireTools(t, "sleep")
	e, _, _ := testExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With a cancelled context the launch may fail or the child may be
	// killed; either way the run ends.
	res := e.Execute(ctx, Tokenize("sleep 30 | sleep 30"))
	assert.Contains(t, []State{Complete, Aborted}, res.State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "builtin", Builtin.String())
}

func evalDir(t *testing.T, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}
