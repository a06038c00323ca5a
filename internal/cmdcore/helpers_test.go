package cmdcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/stretchr/testify/require"
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

// recorder collects event names delivered on the loop.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(e string) int {
	n := 0
	for _, v := range r.get() {
		if v == e {
			n++
		}
	}
	return n
}

func waitFinished(t *testing.T, s *Session) int {
	t.Helper()

	require.Eventually(t, func() bool {
		return s.IsFinished() && s.ExitCode() != ExitIncomplete
	}, waitTimeout, 5*time.Millisecond)

	return s.ExitCode()
}

// scripted maps a command name to its in-process implementation.
type scripted map[string]HandlerFunc

func (s scripted) Run(ctx context.Context, inv *Invocation) int {
	fn, ok := s[inv.Args[0]]
	if !ok {
		inv.Errorf("unknown command %q\n", inv.Args[0])
		return 255
	}
	return fn(ctx, inv)
}

func exitWith(code int) HandlerFunc {
	return func(context.Context, *Invocation) int { return code }
}

func blockUntilCancelled(started chan<- struct{}) HandlerFunc {
	return func(ctx context.Context, inv *Invocation) int {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		inv.Errorf("interrupted!\n")
		return 255
	}
}
