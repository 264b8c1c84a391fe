// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_BoundedCapacity(t *testing.T) {
	q := New[int](2)

	assert.True(t, q.Offer(1))
	assert.True(t, q.Offer(2))
	assert.False(t, q.Offer(3), "offer past capacity must be rejected, not block")
	assert.Equal(t, 2, q.Size())
}

func TestQueue_FIFOOrderSingleProducer(t *testing.T) {
	q := New[int](10)

	for i := 1; i <= 5; i++ {
		require.True(t, q.Offer(i))
	}

	for i := 1; i <= 5; i++ {
		v, ok := q.Poll(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestQueue_SignalIsolation(t *testing.T) {
	traces := New[int](1)
	metrics := New[int](1)

	require.True(t, traces.Offer(1))
	assert.False(t, traces.Offer(2), "traces is full")
	assert.True(t, metrics.Offer(1), "metrics must be unaffected by traces saturation")
}

func TestQueue_OfferSucceedsWhenNotSaturated(t *testing.T) {
	q := New[int](100)
	for i := 0; i < 99; i++ {
		require.True(t, q.Offer(i))
	}
	assert.True(t, q.Offer(99))
}

func TestQueue_PollTimesOutWhenEmpty(t *testing.T) {
	q := New[int](10)

	start := time.Now()
	_, ok := q.Poll(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestQueue_PollReturnsOnceOffered(t *testing.T) {
	q := New[int](10)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Offer(42)
	}()

	v, ok := q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestQueue_DrainUpTo(t *testing.T) {
	q := New[int](10)
	for i := 0; i < 5; i++ {
		require.True(t, q.Offer(i))
	}

	drained := q.DrainUpTo(3)
	assert.Equal(t, []int{0, 1, 2}, drained)
	assert.Equal(t, 2, q.Size())

	rest := q.DrainUpTo(10)
	assert.Equal(t, []int{3, 4}, rest)
	assert.Equal(t, 0, q.Size())
}

func TestQueue_PollRespectsContextCancellation(t *testing.T) {
	q := New[int](10)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, ok := q.Poll(ctx, time.Minute)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}
