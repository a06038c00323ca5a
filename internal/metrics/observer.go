package metrics

import (
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/manager"
	"github.com/repoagent/repoagent/internal/watcher"
	"go.uber.org/zap"
)

// Observer feeds Metrics from manager notifications.
type Observer struct {
	manager *manager.Manager
	metrics *Metrics
	logger  *zap.Logger

	conns []eventloop.Connection
}

func NewObserver(m *manager.Manager, metrics *Metrics, logger *zap.Logger) *Observer {
	return &Observer{
		manager: m,
		metrics: metrics,
		logger:  logger,
	}
}

func (o *Observer) Start() {
	m := o.manager

	o.conns = append(o.conns,
		m.RepositoryOpened().Connect(func(string) { o.metrics.RepositoryOpened() }),
		m.RepositoryClosed().Connect(func(string) { o.metrics.RepositoryClosed() }),
		m.BusyChanged().Connect(func(ev manager.Event[bool]) { o.metrics.Busy(ev.Value) }),
		m.CommandStarted().Connect(func(manager.Event[*cmdcore.Session]) { o.metrics.SessionStarted() }),
		m.CommandFinished().Connect(o.onFinished),
		m.RepositoryChanged().Connect(func(ev manager.Event[watcher.ChangeFlags]) { o.metrics.Changed(ev.Value) }),
		m.ConfigChanged().Connect(func(string) { o.metrics.ChangedKind(KindConfig) }),
		m.RepositoryDestroyed().Connect(func(string) { o.metrics.ChangedKind(KindDestroyed) }),
	)
}

func (o *Observer) Stop() {
	for _, c := range o.conns {
		c.Disconnect()
	}
	o.conns = nil
}

func (o *Observer) onFinished(ev manager.Event[*cmdcore.Session]) {
	sess := ev.Value

	result := ResultFailure
	switch {
	case sess.IsAborted():
		result = ResultAborted
	case sess.ExitCode() == cmdcore.ExitSuccess:
		result = ResultSuccess
	}

	var seconds float64
	if started := sess.StartedAt(); !started.IsZero() {
		seconds = sess.FinishedAt().Sub(started).Seconds()
	}

	o.metrics.SessionFinished(result, seconds)
	o.logger.Debug("session finished",
		zap.String("root", ev.Root),
		zap.String("label", sess.Label()),
		zap.String("result", result))
}
