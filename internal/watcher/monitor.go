package watcher

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce     = 100 * time.Millisecond
	defaultPollInterval = 2 * time.Second
)

type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startMonitor watches dirs with fsnotify and calls trigger once per burst
// of events. When fsnotify is unavailable it calls trigger on a ticker.
// trigger must not block on the watcher.
func startMonitor(dirs []string, cfg Config, trigger func(), logger *zap.Logger) *monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{cancel: cancel, done: make(chan struct{})}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	fsw := newFSWatcher(dirs, logger)

	go func() {
		defer close(m.done)

		if fsw == nil {
			pollLoop(ctx, interval, trigger)
			return
		}
		defer func() { _ = fsw.Close() }()

		eventLoop(ctx, fsw, debounce, trigger, logger)
	}()

	return m
}

func (m *monitor) stop() {
	m.cancel()
	<-m.done
}

func newFSWatcher(dirs []string, logger *zap.Logger) *fsnotify.Watcher {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create fsnotify watcher, falling back to polling", zap.Error(err))
		return nil
	}

	added := 0
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		added++
	}

	if added == 0 {
		_ = fsw.Close()
		logger.Warn("no directory could be watched, falling back to polling")
		return nil
	}

	return fsw
}

func eventLoop(ctx context.Context, fsw *fsnotify.Watcher, debounce time.Duration, trigger func(), logger *zap.Logger) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
			timer.Reset(debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("fsnotify error", zap.Error(err))
		case <-timer.C:
			trigger()
		}
	}
}

func pollLoop(ctx context.Context, interval time.Duration, trigger func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger()
		}
	}
}
