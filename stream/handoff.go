package stream

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

type outcome[T any] struct {
	res Result[T]
	err error
}

type waiter[T any] struct {
	ch        chan outcome[T]
	cancelled bool
}

// Handoff 推转拉的交接队列：数据队列与等待队列任一时刻至多一个非空。
// Push 先满足最早的等待者，否则入缓冲；Pull 先取缓冲，否则挂起等待。
// 完成后缓冲中剩余的值仍可被取出，之后每次 Pull 都返回完成。
type Handoff[T any] struct {
	mu      sync.Mutex
	data    *deque.Deque[T]
	waiters *deque.Deque[*waiter[T]]
	waiting int
	done    bool
	err     error
}

// NewHandoff creates an empty open Handoff.
func NewHandoff[T any]() *Handoff[T] {
	return &Handoff[T]{
		data:    deque.New[T](),
		waiters: deque.New[*waiter[T]](),
	}
}

// Push resolves the oldest pending pull with v or buffers it. It returns
// ErrDone after Close, Fail or Discard.
func (h *Handoff[T]) Push(v T) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return ErrDone
	}
	if w := h.popWaiterLocked(); w != nil {
		w.ch <- outcome[T]{res: Result[T]{Value: v}}
		return nil
	}
	h.data.PushBack(v)
	return nil
}

// Pull returns the oldest buffered value, the completion, or waits for the
// next Push. A value handed over concurrently with ctx cancellation is
// returned rather than lost.
func (h *Handoff[T]) Pull(ctx context.Context) (Result[T], error) {
	h.mu.Lock()
	if h.data.Len() > 0 {
		v := h.data.PopFront()
		h.mu.Unlock()
		return Result[T]{Value: v}, nil
	}
	if h.done {
		err := h.err
		h.mu.Unlock()
		return Result[T]{Done: true}, err
	}
	w := &waiter[T]{ch: make(chan outcome[T], 1)}
	h.waiters.PushBack(w)
	h.waiting++
	h.mu.Unlock()

	select {
	case o := <-w.ch:
		return o.res, o.err
	case <-ctx.Done():
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case o := <-w.ch:
		return o.res, o.err
	default:
	}
	w.cancelled = true
	h.waiting--
	var zero Result[T]
	return zero, ctx.Err()
}

// Close completes the queue normally. Pending pulls receive Done.
// It reports whether this call completed the queue.
func (h *Handoff[T]) Close() bool {
	return h.finish(nil)
}

// Fail completes the queue abnormally. Pending pulls, and every pull after
// the buffer drains, receive err.
func (h *Handoff[T]) Fail(err error) bool {
	return h.finish(err)
}

// Discard completes the queue and drops buffered values.
func (h *Handoff[T]) Discard() bool {
	_, ok := h.Drain()
	return ok
}

// Drain is Discard that hands back the dropped values so the caller can
// dispose of them.
func (h *Handoff[T]) Drain() ([]T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return nil, false
	}
	var dropped []T
	for h.data.Len() > 0 {
		dropped = append(dropped, h.data.PopFront())
	}
	h.completeLocked(nil)
	return dropped, true
}

// Done reports whether the queue is complete.
func (h *Handoff[T]) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Len returns the number of buffered values and of live pending pulls.
// At most one of them is non-zero.
func (h *Handoff[T]) Len() (buffered, waiting int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data.Len(), h.waiting
}

func (h *Handoff[T]) finish(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return false
	}
	h.completeLocked(err)
	return true
}

func (h *Handoff[T]) completeLocked(err error) {
	h.done = true
	h.err = err
	for w := h.popWaiterLocked(); w != nil; w = h.popWaiterLocked() {
		w.ch <- outcome[T]{res: Result[T]{Done: true}, err: err}
	}
}

// popWaiterLocked 跳过已取消的等待者
func (h *Handoff[T]) popWaiterLocked() *waiter[T] {
	for h.waiters.Len() > 0 {
		w := h.waiters.PopFront()
		if w.cancelled {
			continue
		}
		h.waiting--
		return w
	}
	return nil
}
