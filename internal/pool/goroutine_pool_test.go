package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestGoroutinePool_RunsTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 16}, zaptest.NewLogger(t))
	defer p.Close()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	require.Eventually(t, func() bool { return n.Load() == 10 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Completed == 10 }, time.Second, time.Millisecond)
}

func TestGoroutinePool_LongTaskDoesNotStarveOthers(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 4}, nil)
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}))
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second task starved behind a long-running one")
	}
}

func TestGoroutinePool_RejectsWhenFull(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 0}, nil)
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	started := make(chan struct{})
	require.Eventually(t, func() bool {
		return p.Submit(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}) == nil
	}, time.Second, time.Millisecond)
	<-started

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.GreaterOrEqual(t, p.Stats().Rejected, int64(1))
}

func TestGoroutinePool_SubmitWaitAndPanics(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig(), zaptest.NewLogger(t))
	defer p.Close()

	boom := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = p.SubmitWait(context.Background(), func(ctx context.Context) error { panic("bad pump") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad pump")
	require.Eventually(t, func() bool { return p.Stats().Failed == 2 }, time.Second, time.Millisecond)
}

func TestGoroutinePool_Closed(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig(), nil)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Submit(context.Background(), func(ctx context.Context) error { return nil }), ErrPoolClosed)
	assert.ErrorIs(t, p.SubmitWait(context.Background(), func(ctx context.Context) error { return nil }), ErrPoolClosed)
}

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool(8)
	b := bp.Get()
	assert.Len(t, *b, 8)
	*b = (*b)[:3]
	bp.Put(b)

	again := bp.Get()
	assert.Len(t, *again, 8)
	assert.Equal(t, 8, bp.Size())
	assert.Equal(t, int64(2), bp.Stats().Gets)

	bp.Put(nil)
	small := make([]byte, 2)
	bp.Put(&small)
}
