package eventloop

import "sync"

// Signal is a typed observer list whose deliveries are queued on a Loop.
// Slots connected at delivery time are called in connection order.
type Signal[T any] struct {
	loop *Loop

	mu     sync.Mutex
	nextID uint64
	slots  []slot[T]
}

type slot[T any] struct {
	id uint64
	fn func(T)
}

// Connection identifies a connected slot.
type Connection interface {
	Disconnect()
}

type connection[T any] struct {
	signal *Signal[T]
	id     uint64
}

func (c connection[T]) Disconnect() {
	c.signal.disconnect(c.id)
}

func NewSignal[T any](loop *Loop) *Signal[T] {
	return &Signal[T]{loop: loop}
}

// Connect registers fn and returns a handle to disconnect it.
func (s *Signal[T]) Connect(fn func(T)) Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.slots = append(s.slots, slot[T]{id: s.nextID, fn: fn})

	return connection[T]{signal: s, id: s.nextID}
}

// ConnectOnce registers fn for a single delivery.
func (s *Signal[T]) ConnectOnce(fn func(T)) Connection {
	var (
		once sync.Once
		conn Connection
		mu   sync.Mutex
	)

	mu.Lock()
	defer mu.Unlock()

	conn = s.Connect(func(v T) {
		once.Do(func() {
			mu.Lock()
			c := conn
			mu.Unlock()
			c.Disconnect()
			fn(v)
		})
	})

	return conn
}

// Emit queues one delivery of v to the loop.
func (s *Signal[T]) Emit(v T) {
	s.loop.Post(func() { s.deliver(v) })
}

func (s *Signal[T]) deliver(v T) {
	s.mu.Lock()
	slots := make([]slot[T], len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	for _, sl := range slots {
		sl.fn(v)
	}
}

func (s *Signal[T]) disconnect(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sl := range s.slots {
		if sl.id == id {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			return
		}
	}
}

// Relay forwards every emission of src to dst, transformed by fn.
func Relay[S, D any](src *Signal[S], dst *Signal[D], fn func(S) D) Connection {
	return src.Connect(func(v S) { dst.Emit(fn(v)) })
}
