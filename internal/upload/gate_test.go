package upload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateTryAcquireIsExclusive(t *testing.T) {
	g := NewGate()

	assert.True(t, g.TryAcquire("u1"))
	assert.False(t, g.TryAcquire("u1"))
	assert.True(t, g.Held("u1"))

	// Unrelated identifiers are independent.
	assert.True(t, g.TryAcquire("u2"))

	g.Release("u1")
	assert.False(t, g.Held("u1"))
	assert.True(t, g.TryAcquire("u1"))
}

func TestGateReleaseUnheldIsNoop(t *testing.T) {
	g := NewGate()
	g.Release("nope")
	assert.False(t, g.Held("nope"))
}

func TestGateConcurrentAcquireAdmitsOne(t *testing.T) {
	g := NewGate()

	const n = 32
	var wg sync.WaitGroup
	acquired := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("u1") {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, acquired, 1)
}
