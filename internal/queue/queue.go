// Package queue provides the bounded message queue shared by the
// listeners and the processor loop.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/marmos91/muttd/internal/message"
)

// DefaultCapacity bounds the queue when none is configured. An explicit
// bound with a documented drop policy is safer than an unbounded queue.
const DefaultCapacity = 10000

// DequeueTimeout is how long Dequeue waits before returning ok=false,
// giving callers a chance to check for cancellation between polls.
const DequeueTimeout = time.Second

// Queue is a bounded, FIFO, non-blocking-enqueue message queue.
type Queue struct {
	ch      chan message.Message
	dropped atomic.Int64
}

// New creates a Queue with the given capacity. A capacity of 0 uses
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan message.Message, capacity)}
}

// TryEnqueue attempts a non-blocking put. If the queue is full the
// message is dropped and the drop counter is incremented; ok reports
// whether the message was accepted.
func (q *Queue) TryEnqueue(msg message.Message) (ok bool) {
	select {
	case q.ch <- msg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits up to DequeueTimeout for a message. ok is false on
// timeout (not an error: callers retry, re-checking ctx in between) or on
// context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (msg message.Message, ok bool) {
	timer := time.NewTimer(DequeueTimeout)
	defer timer.Stop()

	select {
	case msg = <-q.ch:
		return msg, true
	case <-timer.C:
		return message.Message{}, false
	case <-ctx.Done():
		return message.Message{}, false
	}
}

// Dropped returns the cumulative number of datagrams dropped due to a
// full queue.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Depth returns the current number of queued-but-not-yet-dequeued
// messages.
func (q *Queue) Depth() int {
	return len(q.ch)
}
