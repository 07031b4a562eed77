package observability_test

import (
	"testing"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatbotSnapshot_Rates(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrTurn(observability.RouteShortcut)
	m.IncrTurn(observability.RouteShortcut)
	m.IncrTurn(observability.RouteFallback)
	m.IncrTurn(observability.RouteError)
	m.IncrIntent("COUNT_VEHICLES")
	m.IncrIntent("COUNT_VEHICLES")
	m.IncrIntent("UNKNOWN")
	m.IncrOracleError("429")
	m.IncrPartialWrite()
	m.RecordTokens(120, 30)
	m.IncrCacheHit("memory")
	m.IncrCacheMiss("memory")
	m.RecordRequestDuration("turn", 200*time.Millisecond)

	snap := m.GetChatbotSnapshot()
	require.NotNil(t, snap)

	assert.Equal(t, int64(4), snap.TotalTurns)
	assert.Equal(t, int64(2), snap.TurnsByRoute[observability.RouteShortcut])
	assert.InDelta(t, 0.5, snap.ShortcutHitRate, 1e-9)
	assert.InDelta(t, 0.25, snap.FallbackRate, 1e-9)
	assert.InDelta(t, 0.25, snap.ErrorRate, 1e-9)
	assert.Equal(t, int64(2), snap.IntentCounts["COUNT_VEHICLES"])
	assert.Equal(t, int64(1), snap.IntentCounts["UNKNOWN"])
	assert.Equal(t, int64(1), snap.OracleErrors["429"])
	assert.Equal(t, int64(1), snap.PartialWrites)
	assert.Equal(t, int64(120), snap.PromptTokens)
	assert.Equal(t, int64(30), snap.CompletionTokens)
	assert.InDelta(t, 0.5, snap.CacheHitRate, 1e-9)
	assert.InDelta(t, 200.0, snap.AvgLatencyMs["turn"], 1e-6)
}

func TestChatbotSnapshot_Empty(t *testing.T) {
	snap := observability.NewMetrics().GetChatbotSnapshot()

	assert.Equal(t, int64(0), snap.TotalTurns)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.CacheHitRate)
	assert.Equal(t, "all_time", snap.Period)
}
