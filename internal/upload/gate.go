package upload

import "sync"

// Gate is the per-upload processing lock. TryAcquire is a non-blocking
// compare-and-set: a duplicate completion trigger gets an immediate "already
// processing" answer instead of waiting.
type Gate struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewGate() *Gate {
	return &Gate{held: make(map[string]bool)}
}

// TryAcquire takes the lock for id if it is free. It never blocks.
func (g *Gate) TryAcquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held[id] {
		return false
	}
	g.held[id] = true
	return true
}

// Release frees the lock for id. Releasing an unheld lock is a no-op.
func (g *Gate) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, id)
}

// Held reports whether the lock for id is currently taken.
func (g *Gate) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[id]
}
