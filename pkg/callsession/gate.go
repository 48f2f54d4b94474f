package callsession

import "sync"

// Gate hands out strictly ordered transmission slots. Turn goroutines run
// their slow work (model, synthesis) concurrently, then wait on the ready
// channel before touching the socket, so audio always plays in turn order.
//
// Begin allocates the index, the predecessor's done channel, and this
// turn's completion func in one step under the mutex; two callers can never
// observe the same index or interleave between check and increment. The
// completion func must always run, normally deferred, so an abandoned or
// failed turn still releases its successor.
type Gate struct {
	mu   sync.Mutex
	next int64
	last chan struct{}
}

// NewGate returns a gate whose first turn is immediately ready.
func NewGate() *Gate {
	first := make(chan struct{})
	close(first)
	return &Gate{last: first}
}

// Begin allocates the next turn. The returned ready channel closes when
// every earlier turn has completed; complete is idempotent.
func (g *Gate) Begin() (turn int64, ready <-chan struct{}, complete func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	turn = g.next
	g.next++

	ready = g.last
	done := make(chan struct{})
	g.last = done

	var once sync.Once
	complete = func() {
		once.Do(func() { close(done) })
	}
	return turn, ready, complete
}
