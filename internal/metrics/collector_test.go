package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(nextTestNamespace(), reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector, _ := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.streamsOpened)
	assert.NotNil(t, collector.streamsFinished)
	assert.NotNil(t, collector.activeStreams)
	assert.NotNil(t, collector.messagesTotal)
	assert.NotNil(t, collector.protocolViolations)
	assert.NotNil(t, collector.pumpFetchDuration)
}

func TestCollector_StreamLifecycle(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordStreamOpened(SideHost)
	collector.RecordStreamOpened(SideHost)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.activeStreams.WithLabelValues(SideHost)))

	collector.RecordStreamFinished(SideHost, "normal")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.activeStreams.WithLabelValues(SideHost)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamsFinished.WithLabelValues(SideHost, "normal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.streamsOpened.WithLabelValues(SideHost)))
}

func TestCollector_Messages(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordMessage(SideConsumer, DirectionReceived, "body")
	collector.RecordMessage(SideConsumer, DirectionReceived, "body")
	collector.RecordMessage(SideConsumer, DirectionSent, "cancel")
	collector.RecordViolation(SideConsumer, "LATE_MESSAGE")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.messagesTotal.WithLabelValues(SideConsumer, DirectionReceived, "body")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.messagesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.protocolViolations.WithLabelValues(SideConsumer, "LATE_MESSAGE")))
}

func TestCollector_FetchAndHTTP(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordFetch(10 * time.Millisecond)
	collector.RecordHTTPRequest("GET", "/stream", 200, 5*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/stream", 502, 5*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.pumpFetchDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/stream", "5xx")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordStreamOpened(SideHost)
		collector.RecordStreamFinished(SideHost, "normal")
		collector.RecordMessage(SideHost, DirectionSent, "body")
		collector.RecordViolation(SideHost, "NOT_FOUND")
		collector.RecordFetch(time.Millisecond)
		collector.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordMessage(SideHost, DirectionSent, "body")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.messagesTotal.WithLabelValues(SideHost, DirectionSent, "body")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	collector, reg := newTestCollector(t)
	collector.RecordStreamOpened(SideHost)
	collector.RecordMessage(SideHost, DirectionSent, "head")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	// 空的 Vec 不出现在 Gather 结果中，直方图总是存在
	assert.Len(t, names, 4)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "0", statusCode(0))
}
