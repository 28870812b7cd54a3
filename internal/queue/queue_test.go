package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/queue"
	"github.com/marmos91/muttd/internal/severity"
)

func TestTryEnqueue_DequeueRoundTrip(t *testing.T) {
	q := queue.New(4)
	msg := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "hello")

	ok := q.TryEnqueue(msg)
	require.True(t, ok)

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, msg.ID, got.ID)
}

func TestTryEnqueue_DropsWhenFull(t *testing.T) {
	q := queue.New(1)
	msg := message.New("10.0.0.1", message.TypeSyslog, severity.Info, "a")

	require.True(t, q.TryEnqueue(msg))
	ok := q.TryEnqueue(msg)
	assert.False(t, ok)
	assert.Equal(t, int64(1), q.Dropped())
}

func TestDequeue_TimesOutOnEmptyQueue(t *testing.T) {
	q := queue.New(1)

	start := time.Now()
	_, ok := q.Dequeue(context.Background())
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), queue.DequeueTimeout)
}

func TestDequeue_RespectsCancellation(t *testing.T) {
	q := queue.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestDepth(t *testing.T) {
	q := queue.New(4)
	assert.Equal(t, 0, q.Depth())
	q.TryEnqueue(message.New("10.0.0.1", message.TypeSyslog, severity.Info, "a"))
	assert.Equal(t, 1, q.Depth())
}

func TestDepthMonitor_RateLimits(t *testing.T) {
	m := queue.NewDepthMonitor(nil)
	// Below threshold never warns; above threshold warns at most once per
	// interval. This test just exercises the code path without asserting
	// on log output.
	m.Check(50)
	m.Check(150)
	m.Check(150)
}
