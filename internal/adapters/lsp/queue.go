package lsp

import "sync"

// queue is an unbounded FIFO between the reader and the dispatcher. Push
// never blocks, so the reader keeps routing client responses while a handler
// waits on one.
type queue struct {
	mu    sync.Mutex
	items []*rpcMessage
	ready chan struct{} // holds one token while items is non-empty
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(msg *rpcMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.signal()
}

// pop takes the oldest message. It re-arms ready when more remain.
func (q *queue) pop() (*rpcMessage, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()
	if more {
		q.signal()
	}
	return msg, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
