package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHandoff_BufferThenPull(t *testing.T) {
	h := NewHandoff[int]()
	require.NoError(t, h.Push(1))
	require.NoError(t, h.Push(2))

	buffered, waiting := h.Len()
	assert.Equal(t, 2, buffered)
	assert.Equal(t, 0, waiting)

	ctx := context.Background()
	r, err := h.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result[int]{Value: 1}, r)

	assert.True(t, h.Close())
	assert.False(t, h.Close())

	// 完成后缓冲值仍然可取
	r, err = h.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Value)

	r, err = h.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, r.Done)
	assert.ErrorIs(t, h.Push(3), ErrDone)
}

func TestHandoff_PendingPullResolvedByPush(t *testing.T) {
	h := NewHandoff[string]()
	got := make(chan Result[string], 1)
	go func() {
		r, _ := h.Pull(context.Background())
		got <- r
	}()

	waitFor(t, func() bool { _, w := h.Len(); return w == 1 })
	require.NoError(t, h.Push("x"))

	select {
	case r := <-got:
		assert.Equal(t, "x", r.Value)
	case <-time.After(time.Second):
		t.Fatal("pull never resolved")
	}
	buffered, waiting := h.Len()
	assert.Zero(t, buffered)
	assert.Zero(t, waiting)
}

func TestHandoff_CloseResolvesAllPending(t *testing.T) {
	h := NewHandoff[int]()
	const n = 3
	var wg sync.WaitGroup
	results := make([]Result[int], n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = h.Pull(context.Background())
		}(i)
	}
	waitFor(t, func() bool { _, w := h.Len(); return w == n })

	h.Close()
	wg.Wait()
	for _, r := range results {
		assert.True(t, r.Done)
	}
}

func TestHandoff_FailIsSticky(t *testing.T) {
	h := NewHandoff[int]()
	boom := errors.New("boom")
	require.NoError(t, h.Push(7))
	assert.True(t, h.Fail(boom))

	r, err := h.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, r.Value)

	for i := 0; i < 2; i++ {
		r, err = h.Pull(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.True(t, r.Done)
	}
}

func TestHandoff_DiscardDropsBuffer(t *testing.T) {
	h := NewHandoff[int]()
	require.NoError(t, h.Push(1))
	assert.True(t, h.Discard())

	r, err := h.Pull(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Done)
	assert.True(t, h.Done())
}

func TestHandoff_DrainReturnsDropped(t *testing.T) {
	h := NewHandoff[int]()
	require.NoError(t, h.Push(1))
	require.NoError(t, h.Push(2))

	dropped, ok := h.Drain()
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, dropped)

	dropped, ok = h.Drain()
	assert.False(t, ok)
	assert.Nil(t, dropped)
	assert.ErrorIs(t, h.Push(3), ErrDone)
}

func TestHandoff_CancelledPullDoesNotSwallowValues(t *testing.T) {
	h := NewHandoff[int]()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.Pull(ctx)
		errCh <- err
	}()
	waitFor(t, func() bool { _, w := h.Len(); return w == 1 })
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	_, waiting := h.Len()
	assert.Zero(t, waiting)

	// 取消的等待者被跳过，值进入缓冲
	require.NoError(t, h.Push(5))
	buffered, _ := h.Len()
	assert.Equal(t, 1, buffered)
}

// 任意 push/pull/close 交错下：两个队列互斥、FIFO 交付、每个 pull 恰好一个结果
func TestProperty_HandoffInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := NewHandoff[int]()
		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"push", "pull"}), 1, 40).Draw(rt, "ops")

		type pending struct {
			done chan struct{}
			res  Result[int]
			err  error
		}
		var pulls []*pending
		pushed := 0

		for _, op := range ops {
			switch op {
			case "push":
				if err := h.Push(pushed); err != nil {
					rt.Fatalf("push: %v", err)
				}
				pushed++
			case "pull":
				p := &pending{done: make(chan struct{})}
				_, before := h.Len()
				go func() {
					defer close(p.done)
					p.res, p.err = h.Pull(context.Background())
				}()
				// 等待该 pull 完成或登记为等待者，确定登记顺序
				settled := func() bool {
					select {
					case <-p.done:
						return true
					default:
					}
					_, w := h.Len()
					return w == before+1
				}
				deadline := time.Now().Add(time.Second)
				for !settled() {
					if time.Now().After(deadline) {
						rt.Fatalf("pull neither resolved nor registered")
					}
					time.Sleep(50 * time.Microsecond)
				}
				pulls = append(pulls, p)
			}
			if b, w := h.Len(); b > 0 && w > 0 {
				rt.Fatalf("both queues non-empty: buffered=%d waiting=%d", b, w)
			}
		}

		h.Close()
		var delivered []int
		for _, p := range pulls {
			<-p.done
			if p.err != nil {
				rt.Fatalf("pull error: %v", p.err)
			}
			if !p.res.Done {
				delivered = append(delivered, p.res.Value)
			}
		}
		for {
			r, err := h.Pull(context.Background())
			if err != nil {
				rt.Fatalf("drain: %v", err)
			}
			if r.Done {
				break
			}
			delivered = append(delivered, r.Value)
		}

		if len(delivered) != pushed {
			rt.Fatalf("delivered %d of %d values", len(delivered), pushed)
		}
		for i, v := range delivered {
			if v != i {
				rt.Fatalf("out of order at %d: %v", i, delivered)
			}
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}
