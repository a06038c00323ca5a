package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()

	loop := New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		loop.Stop()
		<-loop.Done()
	})

	return loop
}

func TestLoop_RunsPostedFunctionsInOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	for i := range 5 {
		loop.Post(func() { got = append(got, i) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_PostFromLoopRunsAfterCurrentQueue(t *testing.T) {
	loop := startLoop(t)

	var got []string
	loop.Post(func() {
		got = append(got, "a")
		loop.Post(func() { got = append(got, "c") })
	})
	loop.Post(func() { got = append(got, "b") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))
	require.NoError(t, loop.Sync(ctx))

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLoop_RunTwice(t *testing.T) {
	loop := startLoop(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	assert.ErrorIs(t, loop.Run(context.Background()), ErrAlreadyRunning)
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	loop := New()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestSignal_DeliversInConnectionOrder(t *testing.T) {
	loop := startLoop(t)
	sig := NewSignal[int](loop)

	var got []string
	sig.Connect(func(v int) { got = append(got, "first") })
	conn := sig.Connect(func(v int) { got = append(got, "second") })
	sig.Connect(func(v int) { got = append(got, "third") })

	sig.Emit(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	conn.Disconnect()
	sig.Emit(2)
	require.NoError(t, loop.Sync(ctx))

	assert.Equal(t, []string{"first", "second", "third", "first", "third"}, got)
}

func TestSignal_ConnectOnce(t *testing.T) {
	loop := startLoop(t)
	sig := NewSignal[string](loop)

	var got []string
	sig.ConnectOnce(func(v string) { got = append(got, v) })

	sig.Emit("a")
	sig.Emit("b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))

	assert.Equal(t, []string{"a"}, got)
}

func TestRelay(t *testing.T) {
	loop := startLoop(t)
	src := NewSignal[int](loop)
	dst := NewSignal[string](loop)

	var got []string
	dst.Connect(func(v string) { got = append(got, v) })
	Relay(src, dst, func(v int) string { return string(rune('a' + v)) })

	src.Emit(0)
	src.Emit(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Sync(ctx))
	require.NoError(t, loop.Sync(ctx))

	assert.Equal(t, []string{"a", "b"}, got)
}
