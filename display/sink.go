package display

import (
	"context"
	"math"
	"time"
)

const (

	// Title denotes the window title
	Title = "BLE Temperature"

	// PlotName denotes the name of the temperature plot
	PlotName = "temperature"

	// DefaultFrameInterval denotes the regular frame cadence
	DefaultFrameInterval = 100 * time.Millisecond

	minIncludedY = 15.0
	maxIncludedY = 30.0
)

// RGB denotes a line color
type RGB struct {
	R, G, B uint8
}

// LineColor is the medium green the temperature line is drawn in
var LineColor = RGB{R: 100, G: 200, B: 100}

// Plot describes a line plot of the rolling window, X being the sample index
type Plot struct {
	Name      string
	Points    []float32
	YMin      float64
	YMax      float64
	Color     RGB
	Highlight bool
	Legend    bool
}

// Frame describes everything drawn in a single frame
type Frame struct {
	Title   string
	Heading string
	Plot    Plot
}

// Renderer draws frames
type Renderer interface {
	Render(frame Frame) error
}

// Sink consumes samples from a SampleQueue into a rolling Window and renders
// it on every frame
type Sink struct {
	queue    *SampleQueue
	waker    *Waker
	window   *Window
	renderer Renderer
	interval time.Duration
}

// NewSink instantiates a new Sink, executing functional options, if any
func NewSink(queue *SampleQueue, waker *Waker, renderer Renderer, options ...func(*Sink)) *Sink {
	s := &Sink{
		queue:    queue,
		waker:    waker,
		window:   NewWindow(WindowCapacity),
		renderer: renderer,
		interval: DefaultFrameInterval,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WithFrameInterval sets the regular frame cadence
func WithFrameInterval(interval time.Duration) func(*Sink) {
	return func(s *Sink) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// Run renders frames on the regular cadence and whenever a repaint is
// requested, until ctx is done. The queue is closed on return so producers
// notice the consumer is gone
func (s *Sink) Run(ctx context.Context) error {
	defer s.queue.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Frame(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.waker.C():
		}

		if err := s.Frame(); err != nil {
			return err
		}
	}
}

// Frame drains at most one pending sample into the window and renders it
func (s *Sink) Frame() error {
	if v, ok := s.queue.TryReceive(); ok {
		s.window.Push(v)
	}

	return s.renderer.Render(s.currentFrame())
}

// Window returns the rolling window of the sink
func (s *Sink) Window() *Window {
	return s.window
}

func (s *Sink) currentFrame() Frame {
	points := s.window.Samples()
	yMin, yMax := YRange(points)

	return Frame{
		Title:   Title,
		Heading: Title,
		Plot: Plot{
			Name:      PlotName,
			Points:    points,
			YMin:      yMin,
			YMax:      yMax,
			Color:     LineColor,
			Highlight: true,
			Legend:    true,
		},
	}
}

// YRange returns the Y axis range of a plot, always including [15, 30] and
// growing outward to include all samples
func YRange(samples []float32) (float64, float64) {
	lo, hi := minIncludedY, maxIncludedY
	for _, v := range samples {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	return lo, hi
}
