package display

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowRolling(t *testing.T) {
	w := NewWindow(WindowCapacity)
	require.Zero(t, w.Len())

	for i := 1; i <= 12; i++ {
		w.Push(float32(i))
	}

	require.Equal(t, []float32{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, w.Samples())
}

func TestWindowBound(t *testing.T) {
	for arrivals := 0; arrivals <= 25; arrivals++ {
		w := NewWindow(WindowCapacity)
		for i := 0; i < arrivals; i++ {
			w.Push(float32(i))
		}

		want := []float32{}
		for i := max(arrivals-WindowCapacity, 0); i < arrivals; i++ {
			want = append(want, float32(i))
		}

		require.Equal(t, min(arrivals, WindowCapacity), w.Len())
		require.Equal(t, want, w.Samples())
		require.Equal(t, WindowCapacity, w.Cap())
	}
}

func TestWindowSamplesIsCopy(t *testing.T) {
	w := NewWindow(3)
	w.Push(1)
	samples := w.Samples()
	samples[0] = 42
	require.Equal(t, []float32{1}, w.Samples())
}
