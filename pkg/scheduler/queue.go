package scheduler

import (
	"sync"
	"time"

	"github.com/harrypuuter/ram/pkg/probeconfig"
)

// Item is one queued probe dispatch.
type Item struct {
	// ID is a unique dispatch id, distinct from the backend cluster id
	// which does not exist until submission.
	ID       string
	Probe    probeconfig.Probe
	QueuedAt time.Time
}

// Queue is an unbounded FIFO of probe dispatches.
//
// Push never blocks: the dispatcher must never stall on slow workers,
// and the worker pool is sized so the queue cannot grow without bound
// in steady state. Pop blocks until an item arrives or the queue is
// closed.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Pushing to a closed queue drops the item.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// Pop removes and returns the oldest item. The second return is false
// once the queue is closed and drained.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Close wakes all blocked Pop calls. Items already queued are still
// drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
