package pump

import "sync"

// ChanQueue is a portable Queue backed by a channel of closures. Post
// marshals work onto the pump thread; Wake posts an empty message, which is
// enough for the loop to observe a stop request.
type ChanQueue struct {
	msgs chan func()
	cur  func()

	closeOnce sync.Once
	closed    chan struct{}
}

// NewChanQueue returns a queue buffering up to size messages.
func NewChanQueue(size int) *ChanQueue {
	return &ChanQueue{msgs: make(chan func(), size), closed: make(chan struct{})}
}

// Post schedules fn on the pump thread. It reports false when the queue is
// closed or full.
func (q *ChanQueue) Post(fn func()) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.msgs <- fn:
		return true
	default:
		return false
	}
}

func (q *ChanQueue) Bind() error { return nil }

func (q *ChanQueue) Next() bool {
	select {
	case fn := <-q.msgs:
		q.cur = fn
		return true
	case <-q.closed:
		return false
	}
}

func (q *ChanQueue) Dispatch() {
	if q.cur != nil {
		q.cur()
	}
	q.cur = nil
}

func (q *ChanQueue) Wake() error {
	select {
	case q.msgs <- nil:
	case <-q.closed:
	default:
		// full: Next returns without our help
	}
	return nil
}

func (q *ChanQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
