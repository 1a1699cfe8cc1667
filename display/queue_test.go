package display

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleQueueDropsNewestWhenFull(t *testing.T) {
	q := NewSampleQueue(2)
	require.NoError(t, q.Emit(1))
	require.NoError(t, q.Emit(2))
	require.NoError(t, q.Emit(3))
	require.Equal(t, uint64(1), q.Dropped())

	for _, want := range []float32{1, 2} {
		v, ok := q.TryReceive()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok := q.TryReceive()
	require.False(t, ok)
}

func TestSampleQueueClosed(t *testing.T) {
	q := NewSampleQueue(2)
	q.Close()
	q.Close()
	require.ErrorIs(t, q.Emit(1), ErrClosed)
}

func TestWakerCoalesces(t *testing.T) {
	w := NewWaker()
	w.Wake()
	w.Wake()
	w.Wake()

	<-w.C()
	select {
	case <-w.C():
		t.Fatal("unexpected second repaint request")
	default:
	}
}
