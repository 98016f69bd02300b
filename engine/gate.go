package engine

import "sync"

// gate admits collection operations and supports drain-and-swap exclusivity:
// seal stops admitting, waits for in-flight operations to finish, and leaves
// the caller exclusive until unseal. close drains the same way but is final.
type gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sealed   bool
	closed   bool
	inflight int
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)

	return g
}

// enter admits one operation. Every successful enter must be paired with
// exit.
func (g *gate) enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.sealed {
		return ErrCollectionSealed
	}

	g.inflight++

	return nil
}

func (g *gate) exit() {
	g.mu.Lock()
	g.inflight--
	if g.inflight == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// seal stops admitting operations and returns once all in-flight ones have
// drained. The caller then holds the collection exclusively until unseal.
func (g *gate) seal() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if g.sealed {
		return ErrCollectionSealed
	}

	g.sealed = true
	for g.inflight > 0 {
		g.cond.Wait()
	}

	// A close that raced in while we drained wins; hand exclusivity back.
	if g.closed {
		g.sealed = false
		g.cond.Broadcast()

		return ErrClosed
	}

	return nil
}

func (g *gate) unseal() {
	g.mu.Lock()
	g.sealed = false
	g.cond.Broadcast()
	g.mu.Unlock()
}

// close drains like seal but permanently; operations admitted afterwards fail
// with ErrClosed. Safe to call more than once.
func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}

	g.closed = true
	for g.sealed || g.inflight > 0 {
		g.cond.Wait()
	}
}
