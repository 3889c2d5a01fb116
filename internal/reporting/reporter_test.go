package reporting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Client {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.InitSchema())
	return store
}

func TestSummarizeAggregates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	events := []models.UsageEvent{
		{UserID: "user-1", Capability: "market_brief", CacheHit: false, LatencyMS: 900, TokensIn: 1000, TokensOut: 400, CostCents: 2},
		{UserID: "user-1", Capability: "market_brief", CacheHit: true, LatencyMS: 20},
		{UserID: "user-1", Capability: "radar", CacheHit: false, LatencyMS: 700, TokensIn: 800, TokensOut: 300, CostCents: 1},
		{UserID: "user-2", Capability: "radar", CacheHit: false, LatencyMS: 500, CostCents: 9},
	}
	for i := range events {
		events[i].CreatedAt = time.Now().UTC()
		require.NoError(t, store.InsertUsageEvent(ctx, &events[i]))
	}

	r := NewReporter(store)

	report, err := r.Summarize(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalRuns)
	assert.Equal(t, 1, report.CacheHits)
	assert.InDelta(t, 1.0/3.0, report.CacheHitRate, 0.001)
	assert.Equal(t, 1800, report.TotalTokensIn)
	assert.Equal(t, 700, report.TotalTokensOut)
	assert.Equal(t, 3, report.TotalCostCents)

	brief := report.ByCapability["market_brief"]
	assert.Equal(t, 2, brief.Runs)
	assert.Equal(t, 1, brief.CacheHits)
	assert.Equal(t, 2, brief.CostCents)
}

func TestSummarizeNoEvents(t *testing.T) {
	store := openTestStore(t)
	r := NewReporter(store)

	report, err := r.Summarize(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, report.TotalRuns)
	assert.Zero(t, report.CacheHitRate)
}

func TestDailySpendCountsGenerationOnly(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertUsageEvent(ctx, &models.UsageEvent{
		UserID: "user-1", Capability: "radar", CacheHit: false, CostCents: 7, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.InsertUsageEvent(ctx, &models.UsageEvent{
		UserID: "user-1", Capability: "radar", CacheHit: true, CostCents: 100, CreatedAt: time.Now().UTC(),
	}))

	r := NewReporter(store)

	spent, err := r.DailySpend(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 7, spent)
}
