package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/manager"
	"github.com/repoagent/repoagent/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitTimeout = 5 * time.Second

func TestMetrics_Changed(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Changed(watcher.LogChanged | watcher.WorkingBranchChanged)
	m.Changed(watcher.LogChanged)
	m.ChangedKind(KindConfig)

	assert.InDelta(t, 2, testutil.ToFloat64(m.changes.WithLabelValues("log")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.changes.WithLabelValues("branch")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.changes.WithLabelValues("parent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.changes.WithLabelValues(KindConfig)), 0)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestObserver_FollowsManager(t *testing.T) {
	logger := zaptest.NewLogger(t)

	loop := eventloop.New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		loop.Stop()
		<-loop.Done()
	})

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hg", "store"), 0o755))

	release := make(chan struct{})
	handler := cmdcore.HandlerFunc(func(ctx context.Context, inv *cmdcore.Invocation) int {
		switch inv.Args[len(inv.Args)-1] {
		case "wait":
			select {
			case <-release:
			case <-ctx.Done():
			}
			return 0
		case "fail":
			return 1
		default:
			return 0
		}
	})

	mgr := manager.New(loop, cmdcore.NewInProcessLauncher(handler, logger), manager.Config{}, watcher.Config{}, logger)

	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	o := NewObserver(mgr, m, logger)
	o.Start()
	t.Cleanup(o.Stop)

	a, err := mgr.OpenRepoAgent(root)
	require.NoError(t, err)

	a.RunCommand(cmdcore.CommandLine{"wait"})
	a.RunCommand(cmdcore.CommandLine{"fail"})
	aborted := a.RunCommand(cmdcore.CommandLine{"ok"})
	aborted.Abort()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.repositoriesBusy) == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.repositoriesOpen), 0)

	close(release)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.repositoriesBusy) == 0 &&
			testutil.CollectAndCount(m.sessionsFinished) == 3
	}, waitTimeout, 5*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsFinished.WithLabelValues(ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsFinished.WithLabelValues(ResultFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsFinished.WithLabelValues(ResultAborted)), 0)

	require.NoError(t, mgr.Close(context.Background()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.repositoriesOpen) == 0
	}, waitTimeout, 5*time.Millisecond)
}
