package rtmp

import "sync"

type outboundMessage struct {
	header  *Header
	payload []byte
	// chunkSize is applied to the writer after this message went out
	chunkSize uint32
}

// outboundQueue is an unbounded FIFO between writers and the send goroutine.
// push never blocks.
type outboundQueue struct {
	mu     sync.Mutex
	items  []*outboundMessage
	notify chan struct{}
	closed bool
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *outboundQueue) push(m *outboundMessage) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *outboundQueue) ready() <-chan struct{} {
	return q.notify
}

func (q *outboundQueue) drain() []*outboundMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further pushes and drops what is queued. It returns the number
// of dropped messages.
func (q *outboundQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	dropped := len(q.items)
	q.items = nil
	return dropped
}
