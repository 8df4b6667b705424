package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeStartsAtHeadNotBacklog(t *testing.T) {
	b := New(2 * time.Second)
	b.Publish("tick", "before", Meta{Timestamp: time.Now()})

	sub := b.Subscribe()
	b.Publish("tick", "after", Meta{Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after", env.Payload)
}

func TestPerProducerFIFO(t *testing.T) {
	b := New(2 * time.Second)
	sub := b.Subscribe()

	now := time.Now()
	b.Publish("tick", 1, Meta{Timestamp: now})
	b.Publish("tick", 2, Meta{Timestamp: now})
	b.Publish("tick", 3, Meta{Timestamp: now})

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		env, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, env.Payload)
	}
}

func TestResubscribeDuplicatesCursor(t *testing.T) {
	b := New(2 * time.Second)
	sub := b.Subscribe()

	now := time.Now()
	b.Publish("tick", "one", Meta{Timestamp: now})

	ctx := context.Background()
	_, err := sub.Next(ctx)
	require.NoError(t, err)

	dup := sub.Resubscribe()
	b.Publish("tick", "two", Meta{Timestamp: now})

	env, err := dup.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", env.Payload)

	env2, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", env2.Payload)
}

func TestLaggedSubscriberObservesGap(t *testing.T) {
	b := New(10 * time.Millisecond)
	sub := b.Subscribe()

	old := time.Now().Add(-time.Second)
	b.Publish("tick", "stale", Meta{Timestamp: old})
	// Publish something fresh enough to trigger pruning of the stale entry.
	b.Publish("tick", "fresh", Meta{Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	env, err := sub.Next(ctx)
	require.NoError(t, err)
	gap, ok := env.Payload.(Gap)
	require.True(t, ok, "expected a Gap envelope, got %#v", env.Payload)
	assert.Equal(t, int64(0), gap.LastSeen)

	env2, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", env2.Payload)
}

func TestNextRespectsContextCancellation(t *testing.T) {
	b := New(time.Second)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksSubscribers(t *testing.T) {
	b := New(time.Second)
	sub := b.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}
