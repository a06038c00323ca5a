package eventloop

import (
	"context"
	"sync"
)

// Loop is a single-goroutine cooperative scheduler. Functions posted to it
// run one at a time, in posting order, on the goroutine that called Run.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	stopped bool
	done    chan struct{}
}

func New() *Loop {
	l := &Loop{
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)

	return l
}

// Post schedules fn on the loop. It never blocks. Functions posted after
// Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}

	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Run executes posted functions until ctx is cancelled or Stop is called.
// Work already queued when the loop stops is discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.done)

	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Stop makes Run return after the function currently executing, if any.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	l.cond.Broadcast()
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Sync blocks until every function posted before the call has run, or ctx
// is done. It must not be called from the loop goroutine.
func (l *Loop) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	l.Post(func() { close(reached) })

	select {
	case <-reached:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
