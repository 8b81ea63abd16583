package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.gatewayRequestsTotal)
	assert.NotNil(t, collector.gatewayRequestDuration)
	assert.NotNil(t, collector.breakerState)
	assert.NotNil(t, collector.sessionsActive)
	assert.NotNil(t, collector.persistenceFailuresTotal)
}

func TestCollector_RecordGatewayRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordGatewayRequest("swift", "success", 200*time.Millisecond)
	collector.RecordGatewayRequest("atlas", "error", 5*time.Second)

	count := testutil.CollectAndCount(collector.gatewayRequestsTotal)
	assert.Equal(t, 2, count)
}

func TestCollector_RecordFallback(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordFallback("swift", "atlas")
	collector.RecordFallback("swift", "atlas")

	value := testutil.ToFloat64(collector.gatewayFallbacksTotal.WithLabelValues("swift", "atlas"))
	assert.Equal(t, float64(2), value)
}

func TestCollector_RecordChunks(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordChunk("swift", "start")
	collector.RecordChunk("swift", "token")
	collector.RecordChunk("swift", "token")
	collector.RecordChunk("swift", "end")

	tokens := testutil.ToFloat64(collector.chunksEmittedTotal.WithLabelValues("swift", "token"))
	assert.Equal(t, float64(2), tokens)
}

func TestCollector_RecordTokens(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTokens("atlas", "atlas-large", 120)
	collector.RecordTokens("atlas", "atlas-large", 0) // ignored

	value := testutil.ToFloat64(collector.tokensUsedTotal.WithLabelValues("atlas", "atlas-large"))
	assert.Equal(t, float64(120), value)
}

func TestCollector_BreakerState(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetBreakerState("swift", 1)
	collector.RecordBreakerTransition("swift", "closed", "open")

	value := testutil.ToFloat64(collector.breakerState.WithLabelValues("swift"))
	assert.Equal(t, float64(1), value)

	transitions := testutil.ToFloat64(collector.breakerTransitionsTotal.WithLabelValues("swift", "closed", "open"))
	assert.Equal(t, float64(1), transitions)
}

func TestCollector_SessionLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SessionOpened()
	collector.SessionOpened()
	collector.SessionClosed()

	value := testutil.ToFloat64(collector.sessionsActive)
	assert.Equal(t, float64(1), value)

	collector.RecordSessionRejection("busy")
	rejections := testutil.ToFloat64(collector.sessionRejectionsTotal.WithLabelValues("busy"))
	assert.Equal(t, float64(1), rejections)
}

func TestCollector_RecordPersistenceFailure(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPersistenceFailure("redis")

	value := testutil.ToFloat64(collector.persistenceFailuresTotal.WithLabelValues("redis"))
	assert.Equal(t, float64(1), value)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordGatewayRequest("swift", "success", 100*time.Millisecond)
			collector.RecordChunk("swift", "token")
			collector.SessionOpened()
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	requests := testutil.ToFloat64(collector.gatewayRequestsTotal.WithLabelValues("swift", "success"))
	assert.Equal(t, float64(10), requests)
}
