package concurrent

import "sync"

// WorkQueue. FIFO queue dengan satu consumer. producer push dari goroutine manapun, consumer block di Pop
// sampai ada item baru atau queue diclose.
type WorkQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func NewWorkQueue[T any]() *WorkQueue[T] {
	q := &WorkQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push. enqueue item. return false kalau queue sudah diclose (item tidak dienqueue).
func (q *WorkQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Pop. ambil item paling depan. block selama queue kosong. return false kalau queue sudah diclose,
// walaupun masih ada item yang belum dipop.
func (q *WorkQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	var zero T
	if q.closed {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Close. tutup queue, bangunin consumer, dan return item yang belum sempat dipop.
// Close kedua kali return nil.
func (q *WorkQueue[T]) Close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.cond.Broadcast()
	return pending
}

func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *WorkQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
