package stream

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultQueueCapacity bounds the frame queue when no capacity is configured.
const DefaultQueueCapacity = 60

// frameQueue is a fixed-size FIFO shared by the submission API and the sender
// loop. push never blocks: a full queue rejects the incoming frame. next
// blocks until a frame is available or stop was requested.
type frameQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []QueuedFrame
	head     int
	n        int
	stopping bool
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &frameQueue{buf: make([]QueuedFrame, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// errQueueFull is returned by push when every slot is taken.
var errQueueFull = errors.New("frame queue full")

// push appends f. Once stop was requested nothing more is accepted until
// reset, so a producer racing Stop cannot leave a frame behind.
func (q *frameQueue) push(f QueuedFrame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopping {
		return ErrNotStreaming
	}
	if q.n == len(q.buf) {
		return errQueueFull
	}
	q.buf[(q.head+q.n)%len(q.buf)] = f
	q.n++
	q.cond.Signal()
	return nil
}

// next waits for the oldest frame. It returns false once stop was requested
// and the queue is empty.
func (q *frameQueue) next() (QueuedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.n == 0 && !q.stopping {
		q.cond.Wait()
	}
	if q.n == 0 {
		return QueuedFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = QueuedFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return f, true
}

// stop wakes the consumer and makes next return false once drained.
func (q *frameQueue) stop() {
	q.mu.Lock()
	q.stopping = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// reset drops queued frames and re-arms the queue for a new consumer.
func (q *frameQueue) reset() {
	q.mu.Lock()
	q.clearLocked()
	q.stopping = false
	q.mu.Unlock()
}

func (q *frameQueue) clear() {
	q.mu.Lock()
	q.clearLocked()
	q.mu.Unlock()
}

func (q *frameQueue) clearLocked() {
	for i := range q.buf {
		q.buf[i] = QueuedFrame{}
	}
	q.head, q.n = 0, 0
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *frameQueue) capacity() int {
	return len(q.buf)
}
