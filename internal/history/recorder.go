package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/manager"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	pendingLimit = 256
)

// Recorder journals every session the manager reports as finished. Writes
// happen on a single background goroutine, in completion order.
type Recorder struct {
	manager *manager.Manager
	service *Service
	logger  *zap.Logger

	conn eventloop.Connection

	mu      sync.Mutex
	closed  bool
	pending chan manager.Event[*cmdcore.Session]
	done    chan struct{}
}

func NewRecorder(m *manager.Manager, service *Service, logger *zap.Logger) *Recorder {
	return &Recorder{
		manager: m,
		service: service,
		logger:  logger,

		pending: make(chan manager.Event[*cmdcore.Session], pendingLimit),
		done:    make(chan struct{}),
	}
}

func (r *Recorder) Start() {
	go r.run()
	r.conn = r.manager.CommandFinished().Connect(r.onFinished)
}

// Stop disconnects from the manager and waits until queued sessions are
// written or ctx expires.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.conn != nil {
		r.conn.Disconnect()
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.pending)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("history recorder: %w", ctx.Err())
	}
}

func (r *Recorder) onFinished(ev manager.Event[*cmdcore.Session]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("session finished after recorder stopped",
			zap.String("root", ev.Root),
			zap.Stringer("session", ev.Value.ID()))
		return
	}

	r.pending <- ev
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.pending {
		r.write(ev)
	}
}

func (r *Recorder) write(ev manager.Event[*cmdcore.Session]) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.service.RecordSession(ctx, ev.Root, ev.Value); err != nil {
		r.logger.Error("failed to record session",
			zap.String("root", ev.Root),
			zap.Stringer("session", ev.Value.ID()),
			zap.Error(err))
	}
}
