package stream

import (
	"context"
	"errors"
	"io"
)

// Source 拉取式数据源。ok=false 表示已耗尽；err 非 nil 表示生产者失败
type Source[T any] interface {
	Pull(ctx context.Context) (value T, ok bool, err error)
}

// Result 是一次 Next 的结果，Done=true 时 Value 无意义
type Result[T any] struct {
	Value T
	Done  bool
}

// Iterator 单次遍历的惰性序列，Proxy 与 eventqueue.Bridge 都实现它
type Iterator[T any] interface {
	Next(ctx context.Context) (Result[T], error)
	Return()
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

// Pull calls f.
func (f SourceFunc[T]) Pull(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

type sliceSource[T any] struct {
	items []T
	next  int
}

// FromSlice returns a Source yielding items in order.
func FromSlice[T any](items ...T) Source[T] {
	return &sliceSource[T]{items: items}
}

func (s *sliceSource[T]) Pull(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if s.next >= len(s.items) {
		return zero, false, nil
	}
	v := s.items[s.next]
	s.next++
	return v, true, nil
}

// Failing returns a Source that yields items and then fails with err.
func Failing[T any](err error, items ...T) Source[T] {
	inner := FromSlice(items...)
	return SourceFunc[T](func(ctx context.Context) (T, bool, error) {
		v, ok, pullErr := inner.Pull(ctx)
		if pullErr != nil || ok {
			return v, ok, pullErr
		}
		return v, false, err
	})
}

// Collect drains it until completion. On error the values read so far are
// returned with the error.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var out []T
	for {
		res, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if res.Done {
			return out, nil
		}
		out = append(out, res.Value)
	}
}

// ErrDone is returned by Handoff.Push once the queue is complete.
var ErrDone = errors.New("stream: handoff done")

// Map adapts a Source by converting every value with fn. A conversion error
// is reported as a producer failure. Closing the result closes src.
func Map[T, U any](src Source[T], fn func(T) (U, error)) Source[U] {
	return &mapSource[T, U]{src: src, fn: fn}
}

type mapSource[T, U any] struct {
	src Source[T]
	fn  func(T) (U, error)
}

func (m *mapSource[T, U]) Pull(ctx context.Context) (U, bool, error) {
	var zero U
	v, ok, err := m.src.Pull(ctx)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := m.fn(v)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// Close closes the wrapped source when it is an io.Closer.
func (m *mapSource[T, U]) Close() error {
	if c, ok := m.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
