package protocol

import (
	"sync"

	"github.com/ggoodman/mcp-peer-go/jsonrpc"
)

type inboundNotification struct {
	entry *handlerEntry
	req   *jsonrpc.Request
}

// notifyQueue is an unbounded FIFO between the dispatch loop and the
// notification worker. push never blocks.
type notifyQueue struct {
	mu     sync.Mutex
	items  []inboundNotification
	signal chan struct{}
}

func newNotifyQueue() *notifyQueue {
	return &notifyQueue{signal: make(chan struct{}, 1)}
}

func (q *notifyQueue) push(n inboundNotification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued, oldest first.
func (q *notifyQueue) drain() []inboundNotification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
