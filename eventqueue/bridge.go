package eventqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Sink 接收推送事件。OnTerminate(nil) 表示正常结束
type Sink[T any] interface {
	OnEvent(v T)
	OnTerminate(err error)
}

// PushSource 推送式事件源。Subscribe 开始向 sink 推送，返回的 stop 取消订阅
type PushSource[T any] interface {
	Subscribe(sink Sink[T]) (stop func() error, err error)
}

// PushSourceFunc adapts a function to PushSource.
type PushSourceFunc[T any] func(sink Sink[T]) (func() error, error)

// Subscribe calls f.
func (f PushSourceFunc[T]) Subscribe(sink Sink[T]) (func() error, error) {
	return f(sink)
}

// Option configures a Bridge.
type Option[T any] func(*Bridge[T])

// WithDiscard disposes of events that are never delivered: events pushed
// after completion and events still buffered at Return.
func WithDiscard[T any](fn func(T)) Option[T] {
	return func(b *Bridge[T]) { b.discard = fn }
}

// WithMetrics records bridge lifecycle and violation metrics.
func WithMetrics[T any](m *metrics.Collector) Option[T] {
	return func(b *Bridge[T]) { b.metrics = m }
}

// Bridge 把推送事件转换为拉取序列。事件先满足最早的等待者，否则缓冲；
// 完成后再推送的事件作为协议违规丢弃。
type Bridge[T any] struct {
	q       *stream.Handoff[T]
	discard func(T)
	metrics *metrics.Collector
	logger  *zap.Logger

	mu       sync.Mutex
	stop     func() error
	stopOnce sync.Once
	returned bool

	events  atomic.Int64
	dropped atomic.Int64
}

// New creates an open Bridge.
func New[T any](logger *zap.Logger, opts ...Option[T]) *Bridge[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge[T]{
		q:      stream.NewHandoff[T](),
		logger: logger.With(zap.String("component", "event_bridge")),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.metrics.RecordStreamOpened(metrics.SideEvents)
	return b
}

// Listen subscribes a new Bridge to src. Return on the bridge is the only
// way to unsubscribe.
func Listen[T any](src PushSource[T], logger *zap.Logger, opts ...Option[T]) (*Bridge[T], error) {
	b := New[T](logger, opts...)
	stop, err := src.Subscribe(b)
	if err != nil {
		b.q.Discard()
		b.metrics.RecordStreamFinished(metrics.SideEvents, wire.StatusText(wire.StatusProducerFailure))
		return nil, err
	}
	b.mu.Lock()
	b.stop = stop
	returned := b.returned
	b.mu.Unlock()
	if returned {
		b.callStop()
	}
	return b, nil
}

// Continue delivers v to the oldest pending Next or buffers it.
func (b *Bridge[T]) Continue(v T) error {
	if err := b.q.Push(v); err != nil {
		b.violation("event after completion")
		b.drop(v)
		return types.NewError(types.ErrProtocolViolation, "event after completion").WithCause(err)
	}
	b.events.Add(1)
	return nil
}

// Break completes the sequence normally. Buffered events are still
// delivered before completion.
func (b *Bridge[T]) Break() {
	if !b.q.Close() {
		b.violation("break after completion")
		return
	}
	b.metrics.RecordStreamFinished(metrics.SideEvents, wire.StatusText(wire.StatusNormal))
}

// Throw completes the sequence with err. Pending and later Next calls
// receive err once the buffer drains.
func (b *Bridge[T]) Throw(err error) {
	if err == nil {
		b.Break()
		return
	}
	if !b.q.Fail(err) {
		b.violation("throw after completion")
		return
	}
	b.logger.Debug("event source failed", zap.Error(err))
	b.metrics.RecordStreamFinished(metrics.SideEvents, wire.StatusText(wire.StatusProducerFailure))
}

// Return completes the sequence, drops buffered events and stops the push
// source. Safe to call more than once.
func (b *Bridge[T]) Return() {
	b.mu.Lock()
	b.returned = true
	hasStop := b.stop != nil
	b.mu.Unlock()

	dropped, completed := b.q.Drain()
	for _, v := range dropped {
		b.drop(v)
	}
	if completed {
		b.metrics.RecordStreamFinished(metrics.SideEvents, wire.StatusText(wire.StatusCancelled))
	}
	if hasStop {
		b.callStop()
	}
}

// Next implements stream.Iterator.
func (b *Bridge[T]) Next(ctx context.Context) (stream.Result[T], error) {
	return b.q.Pull(ctx)
}

// Pull implements stream.Source so a host can pump events across a channel.
func (b *Bridge[T]) Pull(ctx context.Context) (T, bool, error) {
	res, err := b.q.Pull(ctx)
	if err != nil || res.Done {
		var zero T
		return zero, false, err
	}
	return res.Value, true, nil
}

// Close calls Return.
func (b *Bridge[T]) Close() error {
	b.Return()
	return nil
}

// OnEvent implements Sink.
func (b *Bridge[T]) OnEvent(v T) {
	_ = b.Continue(v)
}

// OnTerminate implements Sink.
func (b *Bridge[T]) OnTerminate(err error) {
	b.Throw(err)
}

// Done reports whether the sequence has completed.
func (b *Bridge[T]) Done() bool {
	return b.q.Done()
}

// Stats 事件统计
type Stats struct {
	Events   int64 `json:"events"`
	Dropped  int64 `json:"dropped"`
	Buffered int   `json:"buffered"`
	Waiting  int   `json:"waiting"`
}

// Stats returns bridge statistics.
func (b *Bridge[T]) Stats() Stats {
	buffered, waiting := b.q.Len()
	return Stats{
		Events:   b.events.Load(),
		Dropped:  b.dropped.Load(),
		Buffered: buffered,
		Waiting:  waiting,
	}
}

func (b *Bridge[T]) callStop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		stop := b.stop
		b.mu.Unlock()
		if err := stop(); err != nil {
			b.logger.Debug("push source stop", zap.Error(err))
		}
	})
}

// violation 记录完成后的推送；Return 之后到达的属于退订竞态，只记 debug
func (b *Bridge[T]) violation(msg string) {
	b.mu.Lock()
	returned := b.returned
	b.mu.Unlock()
	if returned {
		b.metrics.RecordViolation(metrics.SideEvents, string(types.ErrLateMessage))
		b.logger.Debug(msg)
		return
	}
	b.metrics.RecordViolation(metrics.SideEvents, string(types.ErrProtocolViolation))
	b.logger.Warn(msg)
}

func (b *Bridge[T]) drop(v T) {
	b.dropped.Add(1)
	if b.discard != nil {
		b.discard(v)
	}
}
