package bletemp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationStreamCopiesAndCloses(t *testing.T) {
	s := NewNotificationStream(4)

	buf := []byte{1, 2, 3}
	require.True(t, s.Push(buf))
	buf[0] = 9

	s.Close()
	s.Close()
	require.False(t, s.Push(buf))

	data, ok := <-s.C()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, data)

	_, ok = <-s.C()
	require.False(t, ok)
}

func TestNotificationStreamCloseUnblocksPush(t *testing.T) {
	s := NewNotificationStream(1)
	require.True(t, s.Push([]byte{1}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.False(t, s.Push([]byte{2}))
	}()

	s.Close()
	wg.Wait()
	require.False(t, s.Push([]byte{3}))
}
