package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/repoagent/repoagent/internal/agent"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/repo"
	"github.com/repoagent/repoagent/internal/watcher"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Event is a notification qualified by the repository root it came from.
type Event[T any] struct {
	Root  string
	Value T
}

type entry struct {
	agent    *agent.Agent
	refs     int
	stopping bool
	conns    []eventloop.Connection
	removed  chan struct{}
}

// Manager shares one Agent per canonical repository root among many
// consumers and tears it down when the last reference is released.
type Manager struct {
	loop       *eventloop.Loop
	launcher   cmdcore.Launcher
	cfg        Config
	watcherCfg watcher.Config
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	repositoryOpened    *eventloop.Signal[string]
	repositoryClosed    *eventloop.Signal[string]
	repositoryChanged   *eventloop.Signal[Event[watcher.ChangeFlags]]
	configChanged       *eventloop.Signal[string]
	repositoryDestroyed *eventloop.Signal[string]
	busyChanged         *eventloop.Signal[Event[bool]]
	commandStarted      *eventloop.Signal[Event[*cmdcore.Session]]
	commandFinished     *eventloop.Signal[Event[*cmdcore.Session]]
	output              *eventloop.Signal[Event[cmdcore.Output]]
	progress            *eventloop.Signal[Event[cmdcore.Progress]]
}

func New(
	loop *eventloop.Loop,
	launcher cmdcore.Launcher,
	cfg Config,
	watcherCfg watcher.Config,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		loop:       loop,
		launcher:   launcher,
		cfg:        cfg,
		watcherCfg: watcherCfg,
		logger:     logger,

		entries: make(map[string]*entry),

		repositoryOpened:    eventloop.NewSignal[string](loop),
		repositoryClosed:    eventloop.NewSignal[string](loop),
		repositoryChanged:   eventloop.NewSignal[Event[watcher.ChangeFlags]](loop),
		configChanged:       eventloop.NewSignal[string](loop),
		repositoryDestroyed: eventloop.NewSignal[string](loop),
		busyChanged:         eventloop.NewSignal[Event[bool]](loop),
		commandStarted:      eventloop.NewSignal[Event[*cmdcore.Session]](loop),
		commandFinished:     eventloop.NewSignal[Event[*cmdcore.Session]](loop),
		output:              eventloop.NewSignal[Event[cmdcore.Output]](loop),
		progress:            eventloop.NewSignal[Event[cmdcore.Progress]](loop),
	}
}

func (m *Manager) RepositoryOpened() *eventloop.Signal[string] { return m.repositoryOpened }

func (m *Manager) RepositoryClosed() *eventloop.Signal[string] { return m.repositoryClosed }

func (m *Manager) RepositoryChanged() *eventloop.Signal[Event[watcher.ChangeFlags]] {
	return m.repositoryChanged
}

func (m *Manager) ConfigChanged() *eventloop.Signal[string] { return m.configChanged }

func (m *Manager) RepositoryDestroyed() *eventloop.Signal[string] { return m.repositoryDestroyed }

func (m *Manager) BusyChanged() *eventloop.Signal[Event[bool]] { return m.busyChanged }

func (m *Manager) CommandStarted() *eventloop.Signal[Event[*cmdcore.Session]] {
	return m.commandStarted
}

func (m *Manager) CommandFinished() *eventloop.Signal[Event[*cmdcore.Session]] {
	return m.commandFinished
}

func (m *Manager) OutputReceived() *eventloop.Signal[Event[cmdcore.Output]] { return m.output }

func (m *Manager) ProgressReceived() *eventloop.Signal[Event[cmdcore.Progress]] { return m.progress }

// OpenRepoAgent returns the agent for the repository at path, creating it on
// first use. Every successful call must be paired with ReleaseRepoAgent.
func (m *Manager) OpenRepoAgent(path string) (*agent.Agent, error) {
	root, err := repo.Canonicalize(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.entries[root]; ok {
		e.refs++
		resume := e.stopping
		e.stopping = false
		m.mu.Unlock()

		if resume {
			m.logger.Info("reopened repository during shutdown", zap.String("root", root))
			e.agent.ResumeService()
		}
		return e.agent, nil
	}
	m.mu.Unlock()

	r, err := repo.Open(root,
		repo.WithWatchedFiles(m.cfg.WatchedFiles...),
		repo.WithUserConfigs(m.cfg.UserConfigs...),
	)
	if err != nil {
		return nil, err
	}

	a := agent.New(m.loop, r, m.launcher, m, m.watcherCfg, m.logger)

	m.mu.Lock()
	if e, ok := m.entries[root]; ok {
		// lost a race with a concurrent open
		e.refs++
		m.mu.Unlock()
		return e.agent, nil
	}
	e := &entry{agent: a, refs: 1, removed: make(chan struct{})}
	e.conns = m.wire(root, a)
	m.entries[root] = e
	m.mu.Unlock()

	a.StartMonitoring()
	m.logger.Info("repository opened", zap.String("root", root), zap.String("kind", string(r.Kind())))
	m.repositoryOpened.Emit(root)

	return a, nil
}

// ReleaseRepoAgent drops one reference. The agent is removed once the last
// reference is gone and its services have stopped.
func (m *Manager) ReleaseRepoAgent(path string) error {
	root := repo.Key(path)

	m.mu.Lock()
	e, ok := m.entries[root]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	if e.refs <= 0 {
		// last reference already released, removal pending
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}

	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return nil
	}

	if e.agent.IsServiceRunning() {
		e.stopping = true
		m.mu.Unlock()

		e.agent.StopService()
		return nil
	}
	m.mu.Unlock()

	m.remove(root, e)
	return nil
}

// RepoAgent looks up an open agent without taking a reference.
func (m *Manager) RepoAgent(path string) (*agent.Agent, bool) {
	root := repo.Key(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[root]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// Roots lists open repository roots in lexical order.
func (m *Manager) Roots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	roots := lo.Keys(m.entries)
	slices.Sort(roots)
	return roots
}

// Close releases every agent regardless of its reference count and waits
// for all services to stop.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	var stop, drop []*entry
	var roots []string
	for root, e := range m.entries {
		e.refs = 0
		if e.agent.IsServiceRunning() {
			e.stopping = true
			stop = append(stop, e)
		} else {
			drop = append(drop, e)
			roots = append(roots, root)
		}
	}
	m.mu.Unlock()

	for i, e := range drop {
		m.remove(roots[i], e)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range stop {
		e.agent.StopService()
		g.Go(func() error {
			select {
			case <-e.removed:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %w", ErrShutdownTimeout, e.agent.Root(), ctx.Err())
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Info("all repositories closed")
	return nil
}

func (m *Manager) onServiceStopped(root string) {
	m.mu.Lock()
	e, ok := m.entries[root]
	if !ok || !e.stopping || e.refs > 0 {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.remove(root, e)
}

func (m *Manager) remove(root string, e *entry) {
	m.mu.Lock()
	if m.entries[root] != e {
		m.mu.Unlock()
		return
	}
	delete(m.entries, root)
	m.mu.Unlock()

	for _, c := range e.conns {
		c.Disconnect()
	}
	e.agent.StopMonitoring()
	close(e.removed)

	m.logger.Info("repository closed", zap.String("root", root))
	m.repositoryClosed.Emit(root)

	for _, sub := range e.agent.TakeSubAgents() {
		if err := m.ReleaseRepoAgent(sub.Root()); err != nil && !errors.Is(err, ErrNotOpen) {
			m.logger.Error("failed to release sub-repository", zap.String("root", sub.Root()), zap.Error(err))
		}
	}
}

func (m *Manager) wire(root string, a *agent.Agent) []eventloop.Connection {
	return []eventloop.Connection{
		relay(root, a.RepositoryChanged(), m.repositoryChanged),
		relay(root, a.BusyChanged(), m.busyChanged),
		relay(root, a.CommandStarted(), m.commandStarted),
		relay(root, a.CommandFinished(), m.commandFinished),
		relay(root, a.OutputReceived(), m.output),
		relay(root, a.ProgressReceived(), m.progress),
		a.ConfigChanged().Connect(func(struct{}) { m.configChanged.Emit(root) }),
		a.RepositoryDestroyed().Connect(func(struct{}) { m.repositoryDestroyed.Emit(root) }),
		a.ServiceStopped().Connect(func(struct{}) { m.onServiceStopped(root) }),
	}
}

func relay[T any](root string, src *eventloop.Signal[T], dst *eventloop.Signal[Event[T]]) eventloop.Connection {
	return eventloop.Relay(src, dst, func(v T) Event[T] { return Event[T]{Root: root, Value: v} })
}
