//go:build !windows

package cmdcore

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type collectingSink struct {
	mu      sync.Mutex
	outputs []Output
	done    chan int
}

func newCollectingSink() *collectingSink {
	return &collectingSink{done: make(chan int, 1)}
}

func (c *collectingSink) Output(o Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, o)
}

func (c *collectingSink) Progress(Progress) {}

func (c *collectingSink) Finished(code int) { c.done <- code }

func (c *collectingSink) wait(t *testing.T) int {
	t.Helper()
	select {
	case code := <-c.done:
		return code
	case <-time.After(waitTimeout):
		t.Fatal("worker did not finish")
		return 0
	}
}

func (c *collectingSink) labeled(label string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, o := range c.outputs {
		if o.Label == label {
			out = append(out, strings.TrimSpace(o.Text))
		}
	}
	return out
}

func TestProcessWorker_ExitCodeAndOutput(t *testing.T) {
	launcher := NewProcessLauncher("sh", nil, zaptest.NewLogger(t))
	sink := newCollectingSink()

	launcher.Worker(t.TempDir()).Start(CommandLine{"-c", "echo hello; echo 'warning: careful' >&2; echo oops >&2; exit 3"}, sink)

	assert.Equal(t, 3, sink.wait(t))
	assert.Equal(t, []string{"hello"}, sink.labeled(""))
	assert.Equal(t, []string{"warning: careful"}, sink.labeled(LabelWarning))
	assert.Equal(t, []string{"oops"}, sink.labeled(LabelError))
}

func TestProcessWorker_RunsInDirectory(t *testing.T) {
	dir := t.TempDir()
	launcher := NewProcessLauncher("pwd", nil, zaptest.NewLogger(t))
	sink := newCollectingSink()

	launcher.Worker(dir).Start(CommandLine{}, sink)

	require.Equal(t, 0, sink.wait(t))
	lines := sink.labeled("")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], dir[strings.LastIndex(dir, "/"):]))
}

func TestProcessWorker_StartFailure(t *testing.T) {
	launcher := NewProcessLauncher("/nonexistent/vcs-binary", nil, zaptest.NewLogger(t))
	sink := newCollectingSink()

	launcher.Worker(t.TempDir()).Start(CommandLine{"status"}, sink)

	assert.Equal(t, ExitAborted, sink.wait(t))
	errs := sink.labeled(LabelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "failed to start command")
}

func TestProcessWorker_Abort(t *testing.T) {
	launcher := NewProcessLauncher("sleep", nil, zaptest.NewLogger(t))
	sink := newCollectingSink()
	w := launcher.Worker(t.TempDir())

	w.Start(CommandLine{"10"}, sink)
	w.Abort()
	w.Abort()

	assert.NotEqual(t, 0, sink.wait(t))
}

func TestProcessWorker_AbortBeforeStart(t *testing.T) {
	launcher := NewProcessLauncher("sleep", nil, zaptest.NewLogger(t))
	sink := newCollectingSink()
	w := launcher.Worker(t.TempDir())

	w.Abort()
	w.Start(CommandLine{"10"}, sink)

	assert.Equal(t, ExitAborted, sink.wait(t))
}

func TestAgent_ProcessSessionEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	a := NewAgent(startLoop(t), NewProcessLauncher("sh", nil, logger), t.TempDir(), logger)

	s := a.RunCommandSequence([]CommandLine{
		{"-c", "echo first"},
		{"-c", "echo second >&2; exit 2"},
		{"-c", "echo never"},
	})

	var outputs recorder
	s.OutputReceived().Connect(func(o Output) { outputs.add(strings.TrimSpace(o.Text)) })

	assert.Equal(t, 2, waitFinished(t, s))
	assert.Equal(t, "second", s.ErrorString())
	require.Eventually(t, func() bool { return !a.IsBusy() }, waitTimeout, 5*time.Millisecond)
	assert.NotContains(t, outputs.get(), "never")
}

func TestNewLauncher(t *testing.T) {
	logger := zaptest.NewLogger(t)

	l, err := NewLauncher(Config{Mode: ModeProcess, Executable: "hg"}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &ProcessLauncher{}, l)

	_, err = NewLauncher(Config{Mode: ModeProcess}, nil, logger)
	require.ErrorIs(t, err, ErrMissingExecutable)

	l, err = NewLauncher(Config{Mode: ModeInProcess}, scripted{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &InProcessLauncher{}, l)

	_, err = NewLauncher(Config{Mode: ModeInProcess}, nil, logger)
	require.ErrorIs(t, err, ErrMissingHandler)

	_, err = NewLauncher(Config{Mode: "server"}, nil, logger)
	require.ErrorIs(t, err, ErrUnknownMode)
}
