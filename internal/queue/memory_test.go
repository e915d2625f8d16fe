package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEnginePushReserve(t *testing.T) {
	e := NewMemoryEngine()
	ctx := context.Background()

	require.NoError(t, e.Push(ctx, []byte("one")))
	require.NoError(t, e.Push(ctx, []byte("two")))

	depth, err := e.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	d, err := e.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), d.Payload)
	require.NoError(t, d.Ack(ctx))

	depth, err = e.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestMemoryEngineRequeue(t *testing.T) {
	e := NewMemoryEngine()
	ctx := context.Background()

	require.NoError(t, e.Push(ctx, []byte("job")))
	d, err := e.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Requeue(ctx))

	d, err = e.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("job"), d.Payload)
}

func TestMemoryEngineReserveHonorsContext(t *testing.T) {
	e := NewMemoryEngine()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Reserve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
