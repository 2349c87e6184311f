// Package queue implements a bounded FIFO hand-off between pipeline stages.
//
// Producers block in Put while the queue is full; consumers block in Get
// while it is empty. Once the producer side is marked done, every blocked or
// future Get returns ErrDrained after the remaining items are consumed, so no
// per-consumer sentinel is needed.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDrained is returned by Get when the producer is done and no items remain.
	ErrDrained = errors.New("queue: drained")
	// ErrProducerDone is returned by Put after MarkProducerDone.
	ErrProducerDone = errors.New("queue: producer done")
)

// Stats is a point-in-time view of queue traffic. Put == Got + Remaining.
type Stats struct {
	Put       uint64 `json:"put"`
	Got       uint64 `json:"got"`
	Remaining int    `json:"remaining"`
}

// Queue is a bounded, context-aware FIFO. The zero value is not usable; see New.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf  []T
	head int
	n    int
	done bool

	put uint64
	got uint64
}

// New returns a queue holding at most capacity items. capacity < 1 is treated as 1.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// wake releases every waiter so it can re-check its context.
func (q *Queue[T]) wake() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Put appends v, blocking while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	for q.n == len(q.buf) && !q.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.done {
		return ErrProducerDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	q.put++
	q.notEmpty.Signal()
	return nil
}

// Get removes and returns the oldest item, blocking while the queue is empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	for q.n == 0 && !q.done {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	if q.n == 0 {
		return zero, ErrDrained
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.got++
	q.notFull.Broadcast()
	return v, nil
}

// MarkProducerDone closes the producer side. It is safe to call more than once.
func (q *Queue[T]) MarkProducerDone() {
	q.mu.Lock()
	if !q.done {
		q.done = true
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()
	}
	q.mu.Unlock()
}

// WaitUntilDrainedBelow blocks while more than fraction*capacity items are
// queued. It returns early once the producer side is done. This is pacing
// only: nothing prevents the queue from refilling right after it returns.
func (q *Queue[T]) WaitUntilDrainedBelow(ctx context.Context, fraction float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	limit := int(fraction * float64(len(q.buf)))

	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	for q.n > limit && !q.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	return nil
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Done reports whether MarkProducerDone has been called.
func (q *Queue[T]) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Put: q.put, Got: q.got, Remaining: q.n}
}
