package agent

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/repo"
	"github.com/repoagent/repoagent/internal/watcher"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Opener resolves agents for nested repositories.
type Opener interface {
	OpenRepoAgent(path string) (*Agent, error)
}

// Agent is the per-repository facade. It owns a command queue and a
// watcher, and withholds change notifications while commands are running.
type Agent struct {
	loop    *eventloop.Loop
	base    *repo.Repository
	cfg     watcher.Config
	opener  Opener
	logger  *zap.Logger
	cmd     *cmdcore.Agent
	watcher *watcher.Watcher

	networkFS bool

	mu        sync.Mutex
	overlay   string
	hidden    bool
	latched   watcher.ChangeFlags
	suspended bool
	stopping  bool
	notified  bool
	subAgents map[string]*Agent

	repositoryChanged   *eventloop.Signal[watcher.ChangeFlags]
	configChanged       *eventloop.Signal[struct{}]
	repositoryDestroyed *eventloop.Signal[struct{}]
	serviceStopped      *eventloop.Signal[struct{}]
}

func New(
	loop *eventloop.Loop,
	r *repo.Repository,
	launcher cmdcore.Launcher,
	opener Opener,
	cfg watcher.Config,
	logger *zap.Logger,
) *Agent {
	a := &Agent{
		loop:   loop,
		base:   r,
		cfg:    cfg,
		opener: opener,
		logger: logger.With(zap.String("root", r.Root())),

		networkFS: repo.IsNetworkFS(r.Root()),
		subAgents: make(map[string]*Agent),

		repositoryChanged:   eventloop.NewSignal[watcher.ChangeFlags](loop),
		configChanged:       eventloop.NewSignal[struct{}](loop),
		repositoryDestroyed: eventloop.NewSignal[struct{}](loop),
		serviceStopped:      eventloop.NewSignal[struct{}](loop),
	}

	a.cmd = cmdcore.NewAgent(loop, launcher, r.Root(), a.logger)
	a.watcher = watcher.New(r, cfg, func() { loop.Post(a.PollStatus) }, a.logger)
	a.cmd.BusyChanged().Connect(a.onBusyChanged)

	return a
}

// RepositoryChanged carries the accumulated change flags. It is never
// emitted while a command is running.
func (a *Agent) RepositoryChanged() *eventloop.Signal[watcher.ChangeFlags] {
	return a.repositoryChanged
}

func (a *Agent) ConfigChanged() *eventloop.Signal[struct{}] { return a.configChanged }

func (a *Agent) RepositoryDestroyed() *eventloop.Signal[struct{}] { return a.repositoryDestroyed }

func (a *Agent) BusyChanged() *eventloop.Signal[bool] { return a.cmd.BusyChanged() }

func (a *Agent) CommandStarted() *eventloop.Signal[*cmdcore.Session] { return a.cmd.CommandStarted() }

func (a *Agent) CommandFinished() *eventloop.Signal[*cmdcore.Session] { return a.cmd.CommandFinished() }

func (a *Agent) OutputReceived() *eventloop.Signal[cmdcore.Output] { return a.cmd.OutputReceived() }

func (a *Agent) ProgressReceived() *eventloop.Signal[cmdcore.Progress] {
	return a.cmd.ProgressReceived()
}

// ServiceStopped fires once per StopService, after both the watcher and the
// command queue became inactive.
func (a *Agent) ServiceStopped() *eventloop.Signal[struct{}] { return a.serviceStopped }

func (a *Agent) Root() string { return a.base.Root() }

// Repository returns the active view, including overlay and hidden state.
func (a *Agent) Repository() *repo.Repository {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.activeLocked()
}

func (a *Agent) activeLocked() *repo.Repository {
	return a.base.WithOverlay(a.overlay).WithHidden(a.hidden)
}

// RunCommand queues cmd against the active view.
func (a *Agent) RunCommand(cmd cmdcore.CommandLine) *cmdcore.Session {
	return a.RunCommandSequence([]cmdcore.CommandLine{cmd})
}

func (a *Agent) RunCommandSequence(cmds []cmdcore.CommandLine) *cmdcore.Session {
	return a.RunCommandSequenceLabeled("", cmds)
}

func (a *Agent) RunCommandSequenceLabeled(label string, cmds []cmdcore.CommandLine) *cmdcore.Session {
	if label == "" && len(cmds) > 0 && len(cmds[0]) > 0 {
		label = cmds[0][0]
	}

	global := a.Repository().GlobalArgs()
	prefixed := lo.Map(cmds, func(c cmdcore.CommandLine, _ int) cmdcore.CommandLine {
		return append(append(cmdcore.CommandLine{}, global...), c...)
	})

	return a.cmd.RunCommandSequenceLabeled(label, prefixed)
}

func (a *Agent) AbortCommands() {
	a.cmd.AbortCommands()
}

func (a *Agent) IsBusy() bool {
	return a.cmd.IsBusy()
}

// PollStatus re-evaluates the repository and emits latched changes if no
// command is running.
func (a *Agent) PollStatus() {
	status := a.watcher.PollStatus()

	if status.Destroyed {
		a.repositoryDestroyed.Emit(struct{}{})
	}
	if status.ConfigChanged {
		a.configChanged.Emit(struct{}{})
	}

	a.mu.Lock()
	a.latched |= status.Changes
	a.mu.Unlock()

	a.flush()
}

func (a *Agent) flush() {
	if a.cmd.IsBusy() {
		return
	}

	a.mu.Lock()
	flags := a.latched
	a.latched = 0
	a.mu.Unlock()

	if flags != 0 {
		a.logger.Debug("repository changed", zap.Stringer("changes", flags))
		a.repositoryChanged.Emit(flags)
	}
}

// SetOverlay points the agent at an alternate view of the repository.
// Monitoring stops while an overlay is active.
func (a *Agent) SetOverlay(url string) {
	a.mu.Lock()
	if a.overlay == url {
		a.mu.Unlock()
		return
	}
	a.overlay = url
	a.suspended = false
	a.mu.Unlock()

	if url != "" {
		a.watcher.StopMonitoring()
	} else {
		a.StartMonitoring()
	}

	a.logger.Info("overlay changed", zap.String("overlay", url))
	a.repositoryChanged.Emit(watcher.AllChanged)
}

func (a *Agent) ClearOverlay() {
	a.SetOverlay("")
}

func (a *Agent) Overlay() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.overlay
}

func (a *Agent) SetHiddenRevsIncluded(included bool) {
	a.mu.Lock()
	if a.hidden == included {
		a.mu.Unlock()
		return
	}
	a.hidden = included
	a.mu.Unlock()

	a.repositoryChanged.Emit(watcher.AllChanged)
}

func (a *Agent) HiddenRevsIncluded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.hidden
}

// SubRepoAgent returns the agent of the repository at rel, relative to this
// agent's root.
func (a *Agent) SubRepoAgent(rel string) (*Agent, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubRepoPath, rel)
	}

	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubRepoPath, rel)
	}

	path := filepath.Join(a.Root(), clean)
	if !a.base.Contains(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubRepoPath, rel)
	}

	a.mu.Lock()
	sub, ok := a.subAgents[clean]
	a.mu.Unlock()
	if ok {
		return sub, nil
	}

	if a.opener == nil {
		return nil, fmt.Errorf("%w: no opener for %q", ErrInvalidSubRepoPath, rel)
	}

	sub, err := a.opener.OpenRepoAgent(path)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if existing, ok := a.subAgents[clean]; ok {
		a.mu.Unlock()
		return existing, nil
	}
	a.subAgents[clean] = sub
	a.mu.Unlock()

	return sub, nil
}

// TakeSubAgents returns the opened sub-repository agents and forgets them.
func (a *Agent) TakeSubAgents() []*Agent {
	a.mu.Lock()
	defer a.mu.Unlock()

	subs := lo.Values(a.subAgents)
	a.subAgents = make(map[string]*Agent)

	return subs
}

// StartMonitoring enables filesystem monitoring when policy allows. While a
// command is running the request is remembered and applied once idle.
func (a *Agent) StartMonitoring() {
	if !a.monitoringAllowed() {
		return
	}

	if a.cmd.IsBusy() {
		a.mu.Lock()
		a.suspended = true
		a.mu.Unlock()
		return
	}

	a.watcher.StartMonitoring()
}

func (a *Agent) StopMonitoring() {
	a.mu.Lock()
	a.suspended = false
	a.mu.Unlock()

	a.watcher.StopMonitoring()
}

func (a *Agent) IsMonitoring() bool {
	return a.watcher.IsMonitoring()
}

func (a *Agent) monitoringAllowed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !a.cfg.Enabled:
		return false
	case a.networkFS && !a.cfg.AllowNetworkDrives:
		return false
	case a.overlay != "", a.stopping:
		return false
	}

	return !a.watcher.IsDestroyed()
}

// StopService stops monitoring and aborts every queued command.
// ServiceStopped follows once both are inactive.
func (a *Agent) StopService() {
	a.mu.Lock()
	a.stopping = true
	a.notified = false
	a.suspended = false
	a.mu.Unlock()

	a.logger.Info("stopping service")
	a.watcher.StopMonitoring()
	a.cmd.AbortCommands()
	a.loop.Post(a.checkServiceStopped)
}

// ResumeService cancels a pending stop and restarts monitoring if policy
// allows.
func (a *Agent) ResumeService() {
	a.mu.Lock()
	a.stopping = false
	a.notified = false
	a.mu.Unlock()

	a.StartMonitoring()
}

func (a *Agent) IsServiceRunning() bool {
	return a.watcher.IsMonitoring() || a.cmd.IsBusy()
}

func (a *Agent) checkServiceStopped() {
	if a.IsServiceRunning() {
		return
	}

	a.mu.Lock()
	if !a.stopping || a.notified {
		a.mu.Unlock()
		return
	}
	a.notified = true
	a.mu.Unlock()

	a.logger.Info("service stopped")
	a.serviceStopped.Emit(struct{}{})
}

func (a *Agent) onBusyChanged(busy bool) {
	if busy {
		if a.watcher.IsMonitoring() {
			a.mu.Lock()
			a.suspended = true
			a.mu.Unlock()
			a.watcher.StopMonitoring()
		}
		return
	}

	a.PollStatus()

	a.mu.Lock()
	resume := a.suspended
	a.suspended = false
	stopping := a.stopping
	a.mu.Unlock()

	if stopping {
		a.checkServiceStopped()
		return
	}
	if resume {
		a.StartMonitoring()
	}
}
