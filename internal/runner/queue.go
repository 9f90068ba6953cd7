package runner

import (
	"sync"
	"sync/atomic"
)

type sampleNode struct {
	next  atomic.Pointer[sampleNode]
	nanos int64
}

var nodePool = sync.Pool{New: func() any { return new(sampleNode) }}

// sampleQueue is an intrusive multi-producer single-consumer queue.
// push never blocks and may be called from any goroutine; pop must only be
// called by one goroutine at a time.
type sampleQueue struct {
	head atomic.Pointer[sampleNode] // producers swap here
	tail *sampleNode                // consumer side
	stub sampleNode
}

func (q *sampleQueue) init() {
	q.head.Store(&q.stub)
	q.tail = &q.stub
}

func (q *sampleQueue) push(nanos int64) {
	n := nodePool.Get().(*sampleNode)
	n.nanos = nanos
	q.pushNode(n)
}

func (q *sampleQueue) pushNode(n *sampleNode) {
	n.next.Store(nil)
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// pop returns false when the queue is empty or a producer is halfway
// through linking its node; the sample is then picked up by a later pop.
func (q *sampleQueue) pop() (int64, bool) {
	tail := q.tail
	next := tail.next.Load()
	if tail == &q.stub {
		if next == nil {
			return 0, false
		}
		q.tail = next
		tail = next
		next = next.next.Load()
	}
	if next != nil {
		q.tail = next
		return release(tail), true
	}
	if tail != q.head.Load() {
		return 0, false
	}
	q.pushNode(&q.stub)
	next = tail.next.Load()
	if next != nil {
		q.tail = next
		return release(tail), true
	}
	return 0, false
}

func release(n *sampleNode) int64 {
	v := n.nanos
	nodePool.Put(n)
	return v
}
