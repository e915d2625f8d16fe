package queue

import (
	"context"
	"fmt"
	"sync/atomic"
)

const defaultMemoryCapacity = 1024

// MemoryEngine is a channel-backed engine for tests and single-node
// deployments that accept losing queued transfers on restart.
type MemoryEngine struct {
	ch    chan []byte
	depth atomic.Int64
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{ch: make(chan []byte, defaultMemoryCapacity)}
}

func (e *MemoryEngine) Push(ctx context.Context, payload []byte) error {
	select {
	case e.ch <- payload:
		e.depth.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("memory queue full (%d payloads)", cap(e.ch))
	}
}

func (e *MemoryEngine) Reserve(ctx context.Context) (*Delivery, error) {
	select {
	case payload := <-e.ch:
		e.depth.Add(-1)
		return &Delivery{
			Payload: payload,
			requeue: func(ctx context.Context) error {
				return e.Push(ctx, payload)
			},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *MemoryEngine) Depth(ctx context.Context) (int64, error) {
	return e.depth.Load(), nil
}

var _ Engine = (*MemoryEngine)(nil)
