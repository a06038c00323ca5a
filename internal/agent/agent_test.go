package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/repo"
	"github.com/repoagent/repoagent/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitTimeout = 5 * time.Second

func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()

	loop := eventloop.New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		loop.Stop()
		<-loop.Done()
	})

	return loop
}

func drain(t *testing.T, loop *eventloop.Loop) {
	t.Helper()

	// Deliveries may post further deliveries, so drain twice.
	for range 2 {
		require.NoError(t, loop.Sync(context.Background()))
	}
}

// handler strips the global flags the agent prepends and records the rest.
type handler struct {
	mu       sync.Mutex
	calls    [][]string
	release  chan struct{}
	started  chan struct{}
	blocking map[string]bool
}

func newHandler(blocking ...string) *handler {
	h := &handler{
		release:  make(chan struct{}),
		started:  make(chan struct{}, 8),
		blocking: make(map[string]bool),
	}
	for _, b := range blocking {
		h.blocking[b] = true
	}
	return h
}

func (h *handler) Run(ctx context.Context, inv *cmdcore.Invocation) int {
	h.mu.Lock()
	h.calls = append(h.calls, append([]string(nil), inv.Args...))
	h.mu.Unlock()

	if h.blocking[commandName(inv.Args)] {
		h.started <- struct{}{}
		select {
		case <-h.release:
		case <-ctx.Done():
			return 255
		}
	}

	return 0
}

func commandName(args []string) string {
	for len(args) > 0 {
		switch args[0] {
		case "--repository":
			args = args[2:]
		case "--hidden":
			args = args[1:]
		default:
			return args[0]
		}
	}
	return ""
}

func (h *handler) lastCall() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.calls[len(h.calls)-1]
}

type counter struct {
	mu    sync.Mutex
	flags []watcher.ChangeFlags
}

func (c *counter) add(f watcher.ChangeFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = append(c.flags, f)
}

func (c *counter) get() []watcher.ChangeFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]watcher.ChangeFlags(nil), c.flags...)
}

type fixture struct {
	root  string
	meta  string
	loop  *eventloop.Loop
	h     *handler
	agent *Agent
}

func newFixture(t *testing.T, cfg watcher.Config, opener Opener, blocking ...string) fixture {
	t.Helper()

	root := t.TempDir()
	meta := filepath.Join(root, ".hg")
	require.NoError(t, os.MkdirAll(filepath.Join(meta, "store"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(meta, "store", "00changelog.i"), nil, 0o644))

	r, err := repo.Open(root)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	loop := startLoop(t)
	h := newHandler(blocking...)
	a := New(loop, r, cmdcore.NewInProcessLauncher(h, logger), opener, cfg, logger)
	t.Cleanup(a.StopMonitoring)

	return fixture{root: root, meta: meta, loop: loop, h: h, agent: a}
}

func (f fixture) touchChangelog(t *testing.T, offset time.Duration) {
	t.Helper()

	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(filepath.Join(f.meta, "store", "00changelog.i"), ts, ts))
}

func TestAgent_ChangesLatchedWhileBusy(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil, "commit")

	var changes counter
	f.agent.RepositoryChanged().Connect(changes.add)

	s := f.agent.RunCommand(cmdcore.CommandLine{"commit"})
	<-f.h.started

	f.touchChangelog(t, time.Minute)
	f.agent.PollStatus()
	f.agent.PollStatus()
	drain(t, f.loop)
	assert.Empty(t, changes.get())

	close(f.h.release)
	require.Eventually(t, func() bool { return s.IsFinished() && !f.agent.IsBusy() }, waitTimeout, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(changes.get()) == 1 }, waitTimeout, 5*time.Millisecond)

	f.agent.PollStatus()
	drain(t, f.loop)
	assert.Equal(t, []watcher.ChangeFlags{watcher.LogChanged}, changes.get())
}

func TestAgent_PollWhenIdleEmitsImmediately(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil)

	var changes counter
	f.agent.RepositoryChanged().Connect(changes.add)

	f.touchChangelog(t, time.Minute)
	f.agent.PollStatus()
	drain(t, f.loop)

	assert.Equal(t, []watcher.ChangeFlags{watcher.LogChanged}, changes.get())
}

func TestAgent_PrefixesGlobalArgs(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil)

	s := f.agent.RunCommand(cmdcore.CommandLine{"status"})
	require.Eventually(t, s.IsFinished, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"--repository", f.root, "status"}, f.h.lastCall())
	assert.Equal(t, "status", s.Label())

	f.agent.SetHiddenRevsIncluded(true)
	s = f.agent.RunCommand(cmdcore.CommandLine{"log"})
	require.Eventually(t, s.IsFinished, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"--repository", f.root, "--hidden", "log"}, f.h.lastCall())

	f.agent.SetOverlay("bundle:/tmp/incoming.hg")
	s = f.agent.RunCommand(cmdcore.CommandLine{"log"})
	require.Eventually(t, s.IsFinished, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"--repository", "bundle:/tmp/incoming.hg", "--hidden", "log"}, f.h.lastCall())
}

func TestAgent_OverlayStopsMonitoringAndNotifies(t *testing.T) {
	f := newFixture(t, watcher.Config{Enabled: true, AllowNetworkDrives: true}, nil)

	var changes counter
	f.agent.RepositoryChanged().Connect(changes.add)

	f.agent.StartMonitoring()
	require.True(t, f.agent.IsMonitoring())

	f.agent.SetOverlay("bundle:/tmp/incoming.hg")
	assert.False(t, f.agent.IsMonitoring())
	assert.Equal(t, "bundle:/tmp/incoming.hg", f.agent.Overlay())

	f.agent.StartMonitoring()
	assert.False(t, f.agent.IsMonitoring())

	f.agent.ClearOverlay()
	assert.True(t, f.agent.IsMonitoring())

	drain(t, f.loop)
	assert.Equal(t, []watcher.ChangeFlags{watcher.AllChanged, watcher.AllChanged}, changes.get())
}

func TestAgent_HiddenToggleNotifiesOnce(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil)

	var changes counter
	f.agent.RepositoryChanged().Connect(changes.add)

	f.agent.SetHiddenRevsIncluded(true)
	f.agent.SetHiddenRevsIncluded(true)
	drain(t, f.loop)

	assert.True(t, f.agent.HiddenRevsIncluded())
	assert.Len(t, changes.get(), 1)
}

func TestAgent_MonitoringSuspendedWhileBusy(t *testing.T) {
	f := newFixture(t, watcher.Config{Enabled: true, AllowNetworkDrives: true}, nil, "pull")

	f.agent.StartMonitoring()
	require.True(t, f.agent.IsMonitoring())

	f.agent.RunCommand(cmdcore.CommandLine{"pull"})
	<-f.h.started
	require.Eventually(t, func() bool { return !f.agent.IsMonitoring() }, waitTimeout, 5*time.Millisecond)

	close(f.h.release)
	require.Eventually(t, f.agent.IsMonitoring, waitTimeout, 5*time.Millisecond)
}

func TestAgent_MonitoringDisabledByConfig(t *testing.T) {
	f := newFixture(t, watcher.Config{Enabled: false}, nil)

	f.agent.StartMonitoring()
	assert.False(t, f.agent.IsMonitoring())
}

func TestAgent_StopServiceEmitsOnce(t *testing.T) {
	f := newFixture(t, watcher.Config{Enabled: true, AllowNetworkDrives: true}, nil, "pull")

	var stopped counter
	f.agent.ServiceStopped().Connect(func(struct{}) { stopped.add(0) })

	f.agent.StartMonitoring()
	f.agent.RunCommand(cmdcore.CommandLine{"pull"})
	f.agent.RunCommand(cmdcore.CommandLine{"pull"})
	<-f.h.started

	f.agent.StopService()

	require.Eventually(t, func() bool { return len(stopped.get()) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.False(t, f.agent.IsServiceRunning())

	f.agent.StartMonitoring()
	assert.False(t, f.agent.IsMonitoring())

	drain(t, f.loop)
	assert.Len(t, stopped.get(), 1)

	f.agent.ResumeService()
	assert.True(t, f.agent.IsMonitoring())
}

func TestAgent_StopServiceWhenIdle(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil)

	var stopped counter
	f.agent.ServiceStopped().Connect(func(struct{}) { stopped.add(0) })

	f.agent.StopService()
	drain(t, f.loop)

	assert.Len(t, stopped.get(), 1)
}

func TestAgent_RepositoryDestroyed(t *testing.T) {
	f := newFixture(t, watcher.Config{}, nil)

	var destroyed counter
	f.agent.RepositoryDestroyed().Connect(func(struct{}) { destroyed.add(0) })

	require.NoError(t, os.RemoveAll(f.root))
	f.agent.PollStatus()
	f.agent.PollStatus()
	drain(t, f.loop)

	assert.Len(t, destroyed.get(), 1)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
	agent  *Agent
}

func (o *fakeOpener) OpenRepoAgent(path string) (*Agent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opened = append(o.opened, path)
	return o.agent, nil
}

func TestAgent_SubRepoAgent(t *testing.T) {
	sub := newFixture(t, watcher.Config{}, nil)
	opener := &fakeOpener{agent: sub.agent}
	f := newFixture(t, watcher.Config{}, opener)

	for _, bad := range []string{"", ".", "..", "../other", "/abs/path", "sub/../.."} {
		_, err := f.agent.SubRepoAgent(bad)
		require.ErrorIs(t, err, ErrInvalidSubRepoPath, bad)
	}
	assert.Empty(t, opener.opened)

	got, err := f.agent.SubRepoAgent("vendor/lib")
	require.NoError(t, err)
	assert.Same(t, sub.agent, got)

	got, err = f.agent.SubRepoAgent("vendor/./lib/")
	require.NoError(t, err)
	assert.Same(t, sub.agent, got)

	assert.Equal(t, []string{filepath.Join(f.root, "vendor", "lib")}, opener.opened)
	assert.Len(t, f.agent.TakeSubAgents(), 1)
	assert.Empty(t, f.agent.TakeSubAgents())
}
