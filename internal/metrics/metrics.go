package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/repoagent/repoagent/internal/watcher"
)

const namespace = "repoagent"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAborted = "aborted"
)

// Change kinds beyond the watcher flags.
const (
	KindConfig    = "config"
	KindDestroyed = "destroyed"
)

// Metrics holds the collectors describing repository sessions.
type Metrics struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	repositoriesOpen prometheus.Gauge
	repositoriesBusy prometheus.Gauge
	changes          *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
}

func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Command sessions started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Command sessions finished, by result.",
		}, []string{"result"}),
		repositoriesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repositories_open",
			Help:      "Repositories with a live agent.",
		}),
		repositoriesBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repositories_busy",
			Help:      "Repositories currently running commands.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_changes_total",
			Help:      "Repository change notifications, by kind.",
		}, []string{"kind"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of finished command sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.sessionsStarted,
		m.sessionsFinished,
		m.repositoriesOpen,
		m.repositoriesBusy,
		m.changes,
		m.sessionDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionFinished(result string, seconds float64) {
	m.sessionsFinished.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.sessionDuration.Observe(seconds)
	}
}

func (m *Metrics) RepositoryOpened() { m.repositoriesOpen.Inc() }

func (m *Metrics) RepositoryClosed() { m.repositoriesOpen.Dec() }

func (m *Metrics) Busy(busy bool) {
	if busy {
		m.repositoriesBusy.Inc()
	} else {
		m.repositoriesBusy.Dec()
	}
}

// Changed counts each flag of a change notification separately.
func (m *Metrics) Changed(flags watcher.ChangeFlags) {
	for _, item := range []struct {
		flag watcher.ChangeFlags
		kind string
	}{
		{watcher.LogChanged, "log"},
		{watcher.WorkingParentChanged, "parent"},
		{watcher.WorkingBranchChanged, "branch"},
		{watcher.WorkingStateChanged, "state"},
	} {
		if flags.Has(item.flag) {
			m.changes.WithLabelValues(item.kind).Inc()
		}
	}
}

func (m *Metrics) ChangedKind(kind string) {
	m.changes.WithLabelValues(kind).Inc()
}
