package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/gateway/backend"
	"github.com/BaSui01/tripflow/gateway/breaker"
	"github.com/BaSui01/tripflow/gateway/classifier"
	"github.com/BaSui01/tripflow/testutil"
	"github.com/BaSui01/tripflow/testutil/mocks"
	"github.com/BaSui01/tripflow/types"
)

func newTestGateway(t *testing.T, cfg *Config, swift, atlas backend.Handler, opts Options) *Gateway {
	t.Helper()
	gw, err := New(cfg,
		classifier.New(nil, zap.NewNop()),
		breaker.NewRegistry(nil, zap.NewNop()),
		[]backend.Handler{swift, atlas},
		opts,
	)
	require.NoError(t, err)
	return gw
}

func TestNewRequiresConfiguredBackends(t *testing.T) {
	swift := mocks.NewMockHandler("swift")
	_, err := New(nil,
		classifier.New(nil, zap.NewNop()),
		breaker.NewRegistry(nil, zap.NewNop()),
		[]backend.Handler{swift}, // atlas missing
		Options{},
	)
	assert.Error(t, err)
}

func TestHandleStreamsFastBackend(t *testing.T) {
	swift := mocks.NewMockHandler("swift").WithText("try the cafes in Trastevere")
	atlas := mocks.NewMockHandler("atlas")
	store := mocks.NewMockTurnStore()
	gw := newTestGateway(t, nil, swift, atlas, Options{Store: store, StoreName: "mock"})

	req := types.NewRequest("u1", "conv-1", "best coffee in Rome?", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, types.ChunkStart, chunks[0].Kind)
	assert.Equal(t, types.ChunkEnd, chunks[len(chunks)-1].Kind)
	assert.Equal(t, "try the cafes in Trastevere", testutil.JoinTokens(chunks))
	assert.Equal(t, 0, atlas.InvokeCalls())

	// fire-and-forget persistence: user turn + assembled assistant turn
	testutil.Eventually(t, time.Second, func() bool {
		return len(store.SavedTurns()) == 2
	})
	turns := store.SavedTurns()
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "best coffee in Rome?", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "try the cafes in Trastevere", turns[1].Content)
	assert.Equal(t, "swift", turns[1].Metadata["backend"])
}

func TestHandleRoutesPlanningToQualityBackend(t *testing.T) {
	swift := mocks.NewMockHandler("swift")
	atlas := mocks.NewMockHandler("atlas").WithText("Day 1: Shibuya. Day 2: Nikko.")
	gw := newTestGateway(t, nil, swift, atlas, Options{})

	req := types.NewRequest("u1", "conv-1", "build me an itinerary for Tokyo", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	assert.Equal(t, types.ChunkEnd, chunks[len(chunks)-1].Kind)
	assert.Equal(t, 1, atlas.InvokeCalls())
	assert.Equal(t, 0, swift.InvokeCalls())
}

func TestHandleInvalidRequest(t *testing.T) {
	swift := mocks.NewMockHandler("swift")
	atlas := mocks.NewMockHandler("atlas")
	gw := newTestGateway(t, nil, swift, atlas, Options{})

	req := types.NewRequest("u1", "conv-1", "   ", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkError, chunks[0].Kind)
	assert.Equal(t, string(types.ErrInvalidRequest), chunks[0].Metadata[types.MetaReason])
	assert.Equal(t, 0, swift.InvokeCalls())
	assert.Equal(t, 0, atlas.InvokeCalls())
}

func TestHandleFallsBackOnPreStartFailure(t *testing.T) {
	swift := mocks.NewMockHandler("swift").
		WithInvokeError(types.NewError(types.ErrTransportFailure, "connection refused"))
	atlas := mocks.NewMockHandler("atlas").WithText("fallback answer")
	gw := newTestGateway(t, nil, swift, atlas, Options{})

	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	assert.Equal(t, types.ChunkEnd, chunks[len(chunks)-1].Kind)
	assert.Equal(t, "fallback answer", testutil.JoinTokens(chunks))
	assert.Equal(t, 1, swift.InvokeCalls())
	assert.Equal(t, 1, atlas.InvokeCalls())
}

func TestHandleBothBackendsUnavailable(t *testing.T) {
	swift := mocks.NewMockHandler("swift").
		WithInvokeError(types.NewError(types.ErrTransportFailure, "refused"))
	atlas := mocks.NewMockHandler("atlas").
		WithInvokeError(types.NewError(types.ErrTransportFailure, "refused"))
	gw := newTestGateway(t, nil, swift, atlas, Options{})

	req := types.NewRequest("u1", "conv-1", "anyone there", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkError, chunks[0].Kind)
	assert.Equal(t, string(types.ErrBackendUnavailable), chunks[0].Metadata[types.MetaReason])
	// the user-safe text, never the raw provider error
	assert.NotContains(t, chunks[0].Content, "refused")
}

func TestHandleBreakerOpenSkipsPrimary(t *testing.T) {
	swift := mocks.NewMockHandler("swift").WithText("should not run")
	atlas := mocks.NewMockHandler("atlas").WithText("served by atlas")

	breakers := breaker.NewRegistry(&breaker.Config{Threshold: 1, Cooldown: time.Minute}, zap.NewNop())
	breakers.RecordOutcome("swift", false) // opens immediately

	gw, err := New(nil,
		classifier.New(nil, zap.NewNop()),
		breakers,
		[]backend.Handler{swift, atlas},
		Options{},
	)
	require.NoError(t, err)

	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	assert.Equal(t, "served by atlas", testutil.JoinTokens(chunks))
	assert.Equal(t, 0, swift.InvokeCalls())
}

func TestHandleTimeoutSynthesizesErrorChunk(t *testing.T) {
	swift := mocks.NewMockHandler("swift").
		WithText("one two three four five six seven eight").
		WithChunkDelay(30 * time.Millisecond)
	atlas := mocks.NewMockHandler("atlas")
	cfg := &Config{RequestTimeout: 80 * time.Millisecond, PersistTimeout: time.Second}
	gw := newTestGateway(t, cfg, swift, atlas, Options{})

	req := types.NewRequest("u1", "conv-1", "slow question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), 2*time.Second)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, types.ChunkError, last.Kind)
	assert.Equal(t, string(types.ErrTimeout), last.Metadata[types.MetaReason])
}

func TestHandleMidStreamErrorIsNotPersisted(t *testing.T) {
	swift := mocks.NewMockHandler("swift").
		WithStreamError(types.NewError(types.ErrTransportFailure, "upstream died"), "partial ")
	atlas := mocks.NewMockHandler("atlas")
	store := mocks.NewMockTurnStore()
	gw := newTestGateway(t, nil, swift, atlas, Options{Store: store, StoreName: "mock"})

	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	last := chunks[len(chunks)-1]
	assert.Equal(t, types.ChunkError, last.Kind)
	assert.NotContains(t, last.Content, "upstream died")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.SaveCalls())
}

func TestHandleEmptyResponseIsValidAndPersisted(t *testing.T) {
	swift := mocks.NewMockHandler("swift").WithChunks(
		types.NewStartChunk(types.Metadata{types.MetaBackend: "swift"}),
		types.NewEndChunk(nil),
	)
	atlas := mocks.NewMockHandler("atlas")
	store := mocks.NewMockTurnStore()
	gw := newTestGateway(t, nil, swift, atlas, Options{Store: store, StoreName: "mock"})

	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	require.Len(t, chunks, 2)
	assert.Equal(t, types.ChunkEnd, chunks[1].Kind)

	testutil.Eventually(t, time.Second, func() bool {
		return len(store.SavedTurns()) == 2
	})
	assert.Empty(t, store.SavedTurns()[1].Content)
}

func TestHandleDisconnectedPeerStillRecordsAndPersists(t *testing.T) {
	swift := mocks.NewMockHandler("swift").
		WithText("a b c d e").
		WithChunkDelay(5 * time.Millisecond)
	atlas := mocks.NewMockHandler("atlas")
	store := mocks.NewMockTurnStore()
	gw := newTestGateway(t, nil, swift, atlas, Options{Store: store, StoreName: "mock"})

	ctx, cancel := context.WithCancel(context.Background())
	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	ch := gw.Handle(ctx, req)

	// read the first chunk, then walk away
	<-ch
	cancel()

	// the backend call completes detached and the turn is still written
	testutil.Eventually(t, 2*time.Second, func() bool {
		return len(store.SavedTurns()) == 2
	})
	assert.Equal(t, "a b c d e", store.SavedTurns()[1].Content)
}

func TestHandlePersistenceFailureDoesNotAffectResponse(t *testing.T) {
	swift := mocks.NewMockHandler("swift").WithText("answer")
	atlas := mocks.NewMockHandler("atlas")
	store := mocks.NewMockTurnStore().WithSaveError(assert.AnError)
	gw := newTestGateway(t, nil, swift, atlas, Options{Store: store, StoreName: "mock"})

	req := types.NewRequest("u1", "conv-1", "quick question", nil)
	chunks := testutil.CollectChunks(t, gw.Handle(context.Background(), req), time.Second)

	assert.Equal(t, types.ChunkEnd, chunks[len(chunks)-1].Kind)
	testutil.Eventually(t, time.Second, func() bool {
		return store.SaveCalls() == 2
	})
}
