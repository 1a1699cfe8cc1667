package display

import (
	"errors"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 64

// ErrClosed is returned when emitting to a queue whose consumer has gone away
var ErrClosed = errors.New("sample queue closed")

// SampleQueue is a bounded single-producer / single-consumer queue of samples.
// If the queue is full the newest sample is dropped, the display being a lossy
// rolling window anyway
type SampleQueue struct {
	ch      chan float32
	closed  chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewSampleQueue instantiates a SampleQueue holding up to size pending samples
func NewSampleQueue(size int) *SampleQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &SampleQueue{
		ch:     make(chan float32, size),
		closed: make(chan struct{}),
	}
}

// Emit enqueues a sample without blocking
func (q *SampleQueue) Emit(v float32) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- v:
	default:
		q.dropped.Add(1)
	}
	return nil
}

// TryReceive polls for a pending sample without blocking
func (q *SampleQueue) TryReceive() (float32, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		return 0, false
	}
}

// Close signals that the consumer has gone away
func (q *SampleQueue) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
}

// Dropped returns the number of samples dropped because the queue was full
func (q *SampleQueue) Dropped() uint64 {
	return q.dropped.Load()
}
