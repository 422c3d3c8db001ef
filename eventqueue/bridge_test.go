package eventqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/testutil"
	"github.com/BaSui01/streambridge/types"
)

func nextOf[T any](t *testing.T, b *Bridge[T]) stream.Result[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultTimeout)
	defer cancel()
	res, err := b.Next(ctx)
	require.NoError(t, err)
	return res
}

func waitWaiting[T any](t *testing.T, b *Bridge[T], n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Stats().Waiting == n },
		testutil.DefaultTimeout, 5*time.Millisecond)
}

func TestBridge_BufferedEventsInOrder(t *testing.T) {
	b := New[int](nil)
	require.NoError(t, b.Continue(1))
	require.NoError(t, b.Continue(2))
	b.Break()

	assert.Equal(t, 1, nextOf(t, b).Value)
	assert.Equal(t, 2, nextOf(t, b).Value)
	assert.True(t, nextOf(t, b).Done)
	assert.True(t, nextOf(t, b).Done)
}

func TestBridge_PendingNextResolvedByContinue(t *testing.T) {
	b := New[string](nil)
	results := make(chan stream.Result[string], 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, _ := b.Next(context.Background())
			results <- res
		}()
		waitWaiting(t, b, i+1)
	}

	require.NoError(t, b.Continue("first"))
	require.NoError(t, b.Continue("second"))
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		res, ok := testutil.WaitForChannel(results, testutil.DefaultTimeout)
		require.True(t, ok)
		got[res.Value] = true
	}
	assert.Equal(t, map[string]bool{"first": true, "second": true}, got)
	assert.Equal(t, Stats{Events: 2}, b.Stats())
}

func TestBridge_BreakCompletesPending(t *testing.T) {
	b := New[int](nil)
	results := make(chan stream.Result[int], 3)
	for i := 0; i < 3; i++ {
		go func() {
			res, _ := b.Next(context.Background())
			results <- res
		}()
	}
	waitWaiting(t, b, 3)

	b.Break()
	for i := 0; i < 3; i++ {
		res, ok := testutil.WaitForChannel(results, testutil.DefaultTimeout)
		require.True(t, ok)
		assert.True(t, res.Done)
	}
}

func TestBridge_ThrowRejectsPendingAfterBuffer(t *testing.T) {
	boom := errors.New("socket reset")

	b := New[int](nil)
	require.NoError(t, b.Continue(7))
	b.Throw(boom)
	assert.Equal(t, 7, nextOf(t, b).Value)
	_, err := b.Next(context.Background())
	assert.ErrorIs(t, err, boom)

	pending := New[int](nil)
	errs := make(chan error, 1)
	go func() {
		_, err := pending.Next(context.Background())
		errs <- err
	}()
	waitWaiting(t, pending, 1)
	pending.Throw(boom)
	err, ok := testutil.WaitForChannel(errs, testutil.DefaultTimeout)
	require.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestBridge_ThrowNilIsBreak(t *testing.T) {
	b := New[int](nil)
	b.Throw(nil)
	assert.True(t, nextOf(t, b).Done)
}

func TestBridge_EventsAfterCompletionDropped(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var discarded []int
	b := New[int](zap.New(core), WithDiscard(func(v int) { discarded = append(discarded, v) }))

	b.Break()
	err := b.Continue(9)
	assert.True(t, types.IsCode(err, types.ErrProtocolViolation))
	b.OnEvent(10)
	b.Break()
	b.Throw(errors.New("late"))

	assert.Equal(t, []int{9, 10}, discarded)
	assert.Equal(t, 4, logs.FilterLevelExact(zap.WarnLevel).Len())
	assert.Equal(t, int64(2), b.Stats().Dropped)
	assert.True(t, nextOf(t, b).Done)
}

func TestBridge_ReturnStopsSourceOnce(t *testing.T) {
	var stops atomic.Int32
	var sink Sink[int]
	src := PushSourceFunc[int](func(s Sink[int]) (func() error, error) {
		sink = s
		return func() error {
			stops.Add(1)
			return nil
		}, nil
	})

	var discarded []int
	b, err := Listen[int](src, nil, WithDiscard(func(v int) { discarded = append(discarded, v) }))
	require.NoError(t, err)

	sink.OnEvent(1)
	sink.OnEvent(2)
	b.Return()
	b.Return()
	require.NoError(t, b.Close())

	assert.Equal(t, int32(1), stops.Load())
	assert.Equal(t, []int{1, 2}, discarded)
	assert.True(t, b.Done())
	assert.True(t, nextOf(t, b).Done)

	// 退订竞态中到达的事件照样丢弃
	sink.OnEvent(3)
	sink.OnTerminate(nil)
	assert.Equal(t, []int{1, 2, 3}, discarded)
}

func TestBridge_ReturnBeforeStopKnown(t *testing.T) {
	var stops atomic.Int32
	src := PushSourceFunc[int](func(s Sink[int]) (func() error, error) {
		// 订阅期间消费者已放弃
		s.(*Bridge[int]).Return()
		return func() error {
			stops.Add(1)
			return nil
		}, nil
	})

	b, err := Listen[int](src, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stops.Load())
	assert.True(t, b.Done())
}

func TestListen_SubscribeError(t *testing.T) {
	src := PushSourceFunc[int](func(Sink[int]) (func() error, error) {
		return nil, errors.New("bind: address in use")
	})
	b, err := Listen[int](src, nil)
	assert.Error(t, err)
	assert.Nil(t, b)
}

func TestBridge_AsSource(t *testing.T) {
	b := New[string](nil)
	require.NoError(t, b.Continue("a"))
	b.Break()

	var src stream.Source[string] = b
	v, ok, err := src.Pull(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok, err = src.Pull(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	failed := New[string](nil)
	failed.Throw(errors.New("gone"))
	_, ok, err = failed.Pull(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestBridge_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("sbtest", reg, nil)

	done := New[int](nil, WithMetrics[int](m))
	done.Break()
	returned := New[int](nil, WithMetrics[int](m))
	returned.Return()
	_ = returned.Continue(1)

	n, err := promtestutil.GatherAndCount(reg, "sbtest_streams_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = promtestutil.GatherAndCount(reg, "sbtest_protocol_violations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// 任意交错的 Continue 与 Next：FIFO，缓冲与等待队列不同时非空，恰好一次完成
func TestProperty_BridgeFIFO(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New[string](nil)
		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 60).Draw(t, "ops")

		var sent, got []string
		for i, op := range ops {
			switch op {
			case 0, 1:
				v := fmt.Sprintf("e%d", i)
				if err := b.Continue(v); err != nil {
					t.Fatalf("continue: %v", err)
				}
				sent = append(sent, v)
			case 2:
				if b.Stats().Buffered == 0 {
					continue
				}
				res, err := b.Next(context.Background())
				if err != nil || res.Done {
					t.Fatalf("unexpected %+v %v", res, err)
				}
				got = append(got, res.Value)
			}
			if st := b.Stats(); st.Buffered > 0 && st.Waiting > 0 {
				t.Fatalf("both queues non-empty: %+v", st)
			}
		}

		b.Break()
		completions := 0
		for completions < 2 {
			res, err := b.Next(context.Background())
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if res.Done {
				completions++
				continue
			}
			if completions > 0 {
				t.Fatalf("value after completion")
			}
			got = append(got, res.Value)
		}
		if fmt.Sprint(sent) != fmt.Sprint(got) {
			t.Fatalf("order mismatch: sent %v got %v", sent, got)
		}
	})
}
