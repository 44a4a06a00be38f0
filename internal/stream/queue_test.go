package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameWithPTS(pts int64) QueuedFrame {
	return QueuedFrame{Payload: []byte{byte(pts)}, PTS: pts}
}

func TestFrameQueueFIFO(t *testing.T) {
	q := newFrameQueue(4)
	for i := int64(0); i < 3; i++ {
		require.NoError(t, q.push(frameWithPTS(i)))
	}
	for i := int64(0); i < 3; i++ {
		f, ok := q.next()
		require.True(t, ok)
		assert.Equal(t, i, f.PTS)
	}
	assert.Equal(t, 0, q.len())
}

func TestFrameQueueRejectsNewestWhenFull(t *testing.T) {
	q := newFrameQueue(3)
	for i := int64(0); i < 10; i++ {
		err := q.push(frameWithPTS(i))
		if i < 3 {
			assert.NoError(t, err, "frame %d", i)
		} else {
			assert.ErrorIs(t, err, errQueueFull, "frame %d", i)
		}
		assert.LessOrEqual(t, q.len(), 3)
	}
	for i := int64(0); i < 3; i++ {
		f, ok := q.next()
		require.True(t, ok)
		assert.Equal(t, i, f.PTS)
	}
}

func TestFrameQueueWrapsAround(t *testing.T) {
	q := newFrameQueue(2)
	var got []int64
	for i := int64(0); i < 7; i++ {
		require.NoError(t, q.push(frameWithPTS(i)))
		f, ok := q.next()
		require.True(t, ok)
		got = append(got, f.PTS)
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, got)
}

func TestFrameQueueNextBlocksUntilPush(t *testing.T) {
	q := newFrameQueue(2)
	out := make(chan QueuedFrame, 1)
	go func() {
		f, ok := q.next()
		if ok {
			out <- f
		}
	}()

	select {
	case <-out:
		t.Fatal("next returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.push(frameWithPTS(7)))
	select {
	case f := <-out:
		assert.Equal(t, int64(7), f.PTS)
	case <-time.After(time.Second):
		t.Fatal("next did not wake up")
	}
}

func TestFrameQueueStopDrainsThenEnds(t *testing.T) {
	q := newFrameQueue(4)
	require.NoError(t, q.push(frameWithPTS(1)))
	require.NoError(t, q.push(frameWithPTS(2)))
	q.stop()

	f, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, int64(1), f.PTS)
	f, ok = q.next()
	require.True(t, ok)
	assert.Equal(t, int64(2), f.PTS)
	_, ok = q.next()
	assert.False(t, ok)
}

func TestFrameQueueRejectsAfterStop(t *testing.T) {
	q := newFrameQueue(4)
	require.NoError(t, q.push(frameWithPTS(1)))
	q.stop()
	assert.ErrorIs(t, q.push(frameWithPTS(2)), ErrNotStreaming)
	assert.Equal(t, 1, q.len())

	q.clear()
	assert.ErrorIs(t, q.push(frameWithPTS(3)), ErrNotStreaming)
	assert.Equal(t, 0, q.len())
}

func TestFrameQueueStopWakesWaiter(t *testing.T) {
	q := newFrameQueue(1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.next()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.stop()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stop did not wake the consumer")
	}
}

func TestFrameQueueResetClearsAndRearms(t *testing.T) {
	q := newFrameQueue(2)
	require.NoError(t, q.push(frameWithPTS(1)))
	q.stop()
	q.reset()
	assert.Equal(t, 0, q.len())

	require.NoError(t, q.push(frameWithPTS(2)))
	f, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, int64(2), f.PTS)
}

func TestFrameQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, newFrameQueue(0).capacity())
}
