package bletemp

import "sync"

const defaultStreamBuffer = 16

// NotificationStream bridges notification callbacks of a BLE stack to a
// channel that is closed exactly once when the stream ends
type NotificationStream struct {
	ch   chan []byte
	done chan struct{}

	mu   sync.RWMutex
	once sync.Once
}

// NewNotificationStream instantiates a new NotificationStream with the given buffer size
func NewNotificationStream(size int) *NotificationStream {
	if size <= 0 {
		size = defaultStreamBuffer
	}
	return &NotificationStream{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// C returns the channel notifications are delivered on
func (n *NotificationStream) C() <-chan []byte {
	return n.ch
}

// Push delivers a copy of data, blocking while the buffer is full. It
// returns false if the stream has already been closed
func (n *NotificationStream) Push(data []byte) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	select {
	case <-n.done:
		return false
	default:
	}

	// Stacks commonly reuse the callback buffer
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case n.ch <- buf:
		return true
	case <-n.done:
		return false
	}
}

// Close ends the stream. Notifications already buffered remain readable
func (n *NotificationStream) Close() {
	n.once.Do(func() {
		close(n.done)

		n.mu.Lock()
		close(n.ch)
		n.mu.Unlock()
	})
}
