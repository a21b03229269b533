package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPushPopFIFO(t *testing.T) {
	ch := NewChannel[int](4)
	ctx := context.Background()

	require.NoError(t, ch.Push(ctx, 1))
	require.NoError(t, ch.Push(ctx, 2))
	require.NoError(t, ch.Push(ctx, 3))

	v1, err := ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestChannelBlocksWhenFull(t *testing.T) {
	ch := NewChannel[int](1)
	ctx := context.Background()
	require.NoError(t, ch.Push(ctx, 1))

	pushed := make(chan struct{})
	go func() {
		_ = ch.Push(ctx, 2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatalf("Push on a full channel should block until space is freed")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := ch.Pop(ctx)
	require.NoError(t, err)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatalf("Push should have unblocked after Pop freed capacity")
	}
}

func TestChannelCloseDrainsThenReturnsErrClosed(t *testing.T) {
	ch := NewChannel[int](4)
	ctx := context.Background()
	require.NoError(t, ch.Push(ctx, 1))
	require.NoError(t, ch.Push(ctx, 2))

	ch.Close()

	v, err := ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = ch.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = ch.Pop(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelPushAfterCloseFails(t *testing.T) {
	ch := NewChannel[int](4)
	ch.Close()
	err := ch.Push(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannelConcurrentProducersConsumers(t *testing.T) {
	ch := NewChannel[int](8)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, ch.Push(ctx, i))
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, err := ch.Pop(ctx)
			require.NoError(t, err)
			sum += v
		}
	}()
	wg.Wait()

	assert.Equal(t, n*(n-1)/2, sum)
}
