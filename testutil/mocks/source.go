// MockSource 的拉取式数据源测试模拟实现。
//
// 支持逐步投喂、错误注入与在途拉取观测。
package mocks

import (
	"context"
	"sync/atomic"
)

type step struct {
	value []byte
	err   error
	end   bool
}

// MockSource 是 stream.Source[[]byte] 的模拟实现。
// 每次 Pull 取走一个预先投喂的步骤；没有步骤时阻塞直到投喂或 ctx 取消。
type MockSource struct {
	steps   chan step
	started chan struct{}

	// PullFn 非 nil 时替代默认行为
	PullFn func(ctx context.Context) ([]byte, bool, error)

	pulls  atomic.Int32
	closed atomic.Int32
}

// NewMockSource 创建模拟数据源
func NewMockSource() *MockSource {
	return &MockSource{
		steps:   make(chan step, 1024),
		started: make(chan struct{}, 1024),
	}
}

// NewMockSourceOf 创建已投喂 values 并在其后结束的数据源
func NewMockSourceOf(values ...string) *MockSource {
	m := NewMockSource()
	for _, v := range values {
		m.Emit([]byte(v))
	}
	m.Finish()
	return m
}

// Emit 投喂一个值
func (m *MockSource) Emit(v []byte) *MockSource {
	m.steps <- step{value: v}
	return m
}

// EmitString 投喂一个字符串值
func (m *MockSource) EmitString(v string) *MockSource {
	return m.Emit([]byte(v))
}

// Fail 投喂一次失败
func (m *MockSource) Fail(err error) *MockSource {
	m.steps <- step{err: err}
	return m
}

// Finish 投喂耗尽
func (m *MockSource) Finish() *MockSource {
	m.steps <- step{end: true}
	return m
}

// Pull implements stream.Source.
func (m *MockSource) Pull(ctx context.Context) ([]byte, bool, error) {
	m.pulls.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.PullFn != nil {
		return m.PullFn(ctx)
	}
	select {
	case s := <-m.steps:
		if s.err != nil {
			return nil, false, s.err
		}
		if s.end {
			return nil, false, nil
		}
		return s.value, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close implements io.Closer and counts calls.
func (m *MockSource) Close() error {
	m.closed.Add(1)
	return nil
}

// Started 每次 Pull 开始时收到一个信号
func (m *MockSource) Started() <-chan struct{} {
	return m.started
}

// Pulls 返回 Pull 调用次数
func (m *MockSource) Pulls() int {
	return int(m.pulls.Load())
}

// Closes 返回 Close 调用次数
func (m *MockSource) Closes() int {
	return int(m.closed.Load())
}

// Pending 返回尚未被取走的步骤数
func (m *MockSource) Pending() int {
	return len(m.steps)
}
