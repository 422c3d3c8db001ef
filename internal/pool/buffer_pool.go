package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)

	// Metrics
	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewPool creates a new object pool.
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{reset: resetFunc}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate returns the reuse rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// BufferPool 固定大小的读缓冲池，读出的数据交给下游前必须复制
type BufferPool struct {
	size int
	pool *Pool[*[]byte]
}

// NewBufferPool creates a pool of size-byte read buffers.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = 32 * 1024
	}
	return &BufferPool{
		size: size,
		pool: NewPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}, nil),
	}
}

// Get returns a buffer of exactly Size bytes.
func (p *BufferPool) Get() *[]byte {
	b := p.pool.Get()
	*b = (*b)[:p.size]
	return b
}

// Put returns a buffer obtained from Get.
func (p *BufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) < p.size {
		return
	}
	p.pool.Put(b)
}

// Size returns the buffer size.
func (p *BufferPool) Size() int { return p.size }

// Stats returns pool statistics.
func (p *BufferPool) Stats() PoolStats { return p.pool.Stats() }
