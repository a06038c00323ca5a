package watcher

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Repository is the on-disk view the watcher observes.
type Repository interface {
	Root() string
	LockFiles() []string
	DirstateFile() string
	BranchFile() string
	MetadataFiles() []string
	ConfigFiles() []string
	WatchDirs() []string
	ReadParents() ([]byte, error)
	ReadBranch() (string, error)
}

// Watcher detects external mutation of a repository by comparing file
// modification times against a snapshot. Each detection path refreshes only
// its own part of the snapshot.
type Watcher struct {
	repo    Repository
	cfg     Config
	trigger func()
	logger  *zap.Logger

	mu            sync.Mutex
	parents       []byte
	branch        string
	dirstateMtime time.Time
	branchMtime   time.Time
	metaMtime     time.Time
	uiMtimes      map[string]time.Time
	destroyed     bool

	monitor *monitor
}

// New takes the initial snapshot of r. trigger is called from a background
// goroutine whenever monitoring observes activity; the owner is expected to
// schedule a PollStatus in response.
func New(r Repository, cfg Config, trigger func(), logger *zap.Logger) *Watcher {
	w := &Watcher{
		repo:     r,
		cfg:      cfg,
		trigger:  trigger,
		logger:   logger,
		uiMtimes: make(map[string]time.Time),
	}

	w.dirstateMtime = mtime(r.DirstateFile())
	w.branchMtime = mtime(r.BranchFile())
	w.parents, _ = r.ReadParents()
	w.branch, _ = r.ReadBranch()
	w.metaMtime = w.maxMetadataMtime()
	for _, f := range r.ConfigFiles() {
		w.uiMtimes[f] = mtime(f)
	}

	return w
}

// PollStatus re-evaluates the repository against the snapshot.
func (w *Watcher) PollStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return Status{}
	}

	if _, err := os.Stat(w.repo.Root()); errors.Is(err, fs.ErrNotExist) {
		w.logger.Info("repository destroyed", zap.String("root", w.repo.Root()))
		w.destroyed = true
		w.stopMonitoringLocked()
		return Status{Destroyed: true}
	}

	if w.isLocked() {
		w.logger.Debug("repository locked, poll deferred", zap.String("root", w.repo.Root()))
		return Status{Locked: true}
	}

	var status Status
	status.Changes |= w.checkWorkingState()

	if m := w.maxMetadataMtime(); m.After(w.metaMtime) {
		if w.isLocked() {
			status.Locked = true
		} else {
			w.metaMtime = m
			status.Changes |= LogChanged
		}
	}

	status.ConfigChanged = w.checkConfigFiles()

	if !status.IsZero() {
		w.logger.Debug("poll detected changes",
			zap.String("root", w.repo.Root()),
			zap.Stringer("changes", status.Changes),
			zap.Bool("config", status.ConfigChanged),
		)
	}

	return status
}

func (w *Watcher) checkWorkingState() ChangeFlags {
	dirstate := mtime(w.repo.DirstateFile())
	branchFile := mtime(w.repo.BranchFile())
	if dirstate.Equal(w.dirstateMtime) && branchFile.Equal(w.branchMtime) {
		return 0
	}
	w.dirstateMtime = dirstate
	w.branchMtime = branchFile

	var flags ChangeFlags

	parents, err := w.repo.ReadParents()
	if err != nil {
		w.logger.Warn("failed to read working parents", zap.Error(err))
	} else if !bytes.Equal(parents, w.parents) {
		w.parents = parents
		flags |= WorkingParentChanged
	}

	branch, err := w.repo.ReadBranch()
	if err != nil {
		w.logger.Warn("failed to read working branch", zap.Error(err))
	} else if branch != w.branch {
		w.branch = branch
		flags |= WorkingBranchChanged
	}

	if flags == 0 {
		flags = WorkingStateChanged
	}

	return flags
}

func (w *Watcher) checkConfigFiles() bool {
	changed := false
	for _, f := range w.repo.ConfigFiles() {
		m := mtime(f)
		if m.After(w.uiMtimes[f]) {
			changed = true
		}
		w.uiMtimes[f] = m
	}

	return changed
}

func (w *Watcher) isLocked() bool {
	for _, f := range w.repo.LockFiles() {
		if _, err := os.Lstat(f); err == nil {
			return true
		}
	}

	return false
}

func (w *Watcher) maxMetadataMtime() time.Time {
	var latest time.Time
	for _, f := range w.repo.MetadataFiles() {
		if m := mtime(f); m.After(latest) {
			latest = m
		}
	}

	return latest
}

// StartMonitoring subscribes to filesystem activity. It is a no-op when
// monitoring is already active or the repository was destroyed.
func (w *Watcher) StartMonitoring() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.monitor != nil || w.destroyed {
		return
	}

	w.monitor = startMonitor(w.repo.WatchDirs(), w.cfg, w.trigger, w.logger)
	w.logger.Debug("monitoring started", zap.String("root", w.repo.Root()))
}

// StopMonitoring stops the filesystem subscription and waits for it to exit.
func (w *Watcher) StopMonitoring() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopMonitoringLocked()
}

func (w *Watcher) stopMonitoringLocked() {
	if w.monitor == nil {
		return
	}

	w.monitor.stop()
	w.monitor = nil
	w.logger.Debug("monitoring stopped", zap.String("root", w.repo.Root()))
}

func (w *Watcher) IsMonitoring() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.monitor != nil
}

func (w *Watcher) IsDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.destroyed
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}

	return info.ModTime()
}
