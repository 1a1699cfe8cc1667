// Package display renders a rolling window of temperature samples. It has no
// knowledge of BLE: any producer of Celsius samples can feed it.
package display

// WindowCapacity denotes the number of samples kept for display
const WindowCapacity = 10

// Window is a fixed-capacity FIFO of the most recent samples, in arrival order
type Window struct {
	samples  []float32
	capacity int
}

// NewWindow instantiates an empty Window with the given capacity
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowCapacity
	}
	return &Window{
		samples:  make([]float32, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest one if the window is at capacity
func (w *Window) Push(v float32) {
	if len(w.samples) >= w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, v)
}

// Len returns the number of samples in the window
func (w *Window) Len() int {
	return len(w.samples)
}

// Cap returns the capacity of the window
func (w *Window) Cap() int {
	return w.capacity
}

// Samples returns a copy of the samples, oldest first
func (w *Window) Samples() []float32 {
	res := make([]float32, len(w.samples))
	copy(res, w.samples)
	return res
}
