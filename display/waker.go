package display

// Waker is an edge-triggered repaint request. Multiple wakes between two
// frames coalesce into a single repaint
type Waker struct {
	ch chan struct{}
}

// NewWaker instantiates a new Waker
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake requests a repaint without blocking
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a pending repaint request is signalled on
func (w *Waker) C() <-chan struct{} {
	return w.ch
}
