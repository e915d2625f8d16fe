package queue

import "context"

// Engine is the durable job store backing the sync queue. It owns
// crash-durability; the sync queue owns concurrency, retry and status. A
// reserved payload stays owned by the engine until acked or requeued, so a
// process crash mid-transfer leaves the payload recoverable.
type Engine interface {
	// Push durably admits a payload. It returns once admission is durable.
	Push(ctx context.Context, payload []byte) error

	// Reserve blocks until a payload is available or ctx is done.
	Reserve(ctx context.Context) (*Delivery, error)

	// Depth returns the number of admitted, not-yet-reserved payloads.
	Depth(ctx context.Context) (int64, error)
}

// Delivery is one reserved payload plus its settlement callbacks.
type Delivery struct {
	Payload []byte

	ack     func(context.Context) error
	requeue func(context.Context) error
}

// Ack marks the payload as fully handled; the engine forgets it.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Requeue returns the payload to the pending queue for a later reserve.
func (d *Delivery) Requeue(ctx context.Context) error {
	if d.requeue == nil {
		return nil
	}
	return d.requeue(ctx)
}
