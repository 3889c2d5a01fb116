package quota

import (
	"context"
	"errors"
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

func TestCheckAndConsumeIncrements(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)
	ctx := context.Background()

	st, err := ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Used)
	assert.Equal(t, 3, st.Limit)

	st, err = ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Used)
}

func TestCheckAndConsumeDeniesWithoutIncrement(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)
	ctx := context.Background()

	// Free plan allows 3 briefs per period.
	for i := 0; i < 3; i++ {
		_, err := ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
		require.NoError(t, err)
	}

	_, err := ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "briefs", exceeded.Key)
	assert.Equal(t, 3, exceeded.Used)
	assert.Equal(t, 3, exceeded.Limit)

	// The denied attempt must not have moved the counter.
	count, err := store.GetQuotaCount(ctx, "user-1", PeriodStart(time.Now()), "briefs")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUnlimitedPlanNeverWritesCounter(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &models.User{ID: "user-1", PlanCode: "scale"}))

	for i := 0; i < 50; i++ {
		st, err := ledger.CheckAndConsume(ctx, "user-1", "ai_calls", 1)
		require.NoError(t, err)
		assert.Equal(t, Unlimited, st.Limit)
	}

	count, err := store.GetQuotaCount(ctx, "user-1", PeriodStart(time.Now()), "ai_calls")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPlanLimitsTableOverridesDefaults(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &models.User{ID: "user-1", PlanCode: "starter"}))
	require.NoError(t, store.SetPlanLimit(ctx, &models.PlanLimit{PlanCode: "starter", QuotaKey: "briefs", Limit: 1}))

	_, err := ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
	require.NoError(t, err)

	_, err = ledger.CheckAndConsume(ctx, "user-1", "briefs", 1)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.Limit)
}

func TestPeriodStartFirstOfMonth(t *testing.T) {
	now := time.Date(2026, time.March, 17, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), PeriodStart(now))

	// A caller in a non-UTC zone still lands on the UTC month.
	loc := time.FixedZone("UTC+13", 13*3600)
	early := time.Date(2026, time.April, 1, 3, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), PeriodStart(early))
}

func TestCheckDailyCostCapTrips(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 100)
	ctx := context.Background()

	require.NoError(t, ledger.CheckDailyCostCap(ctx))

	require.NoError(t, store.InsertUsageEvent(ctx, &models.UsageEvent{
		UserID:     "user-1",
		Capability: "market_brief",
		CacheHit:   false,
		CostCents:  100,
		CreatedAt:  time.Now().UTC(),
	}))

	err := ledger.CheckDailyCostCap(ctx)
	var capErr *CostCapError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 100, capErr.SpentCents)
	assert.Equal(t, 100, capErr.CapCents)
}

func TestCheckDailyCostCapIgnoresCacheHits(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 100)
	ctx := context.Background()

	require.NoError(t, store.InsertUsageEvent(ctx, &models.UsageEvent{
		UserID:     "user-1",
		Capability: "market_brief",
		CacheHit:   true,
		CostCents:  500,
		CreatedAt:  time.Now().UTC(),
	}))

	require.NoError(t, ledger.CheckDailyCostCap(ctx))
}

func TestCheckDailyCostCapDisabledByZeroCap(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)

	require.NoError(t, ledger.CheckDailyCostCap(context.Background()))
}

func TestCheckDailyCostCapFailsOpen(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 100)

	store.Close()

	err := ledger.CheckDailyCostCap(context.Background())
	var capErr *CostCapError
	assert.False(t, errors.As(err, &capErr))
	assert.NoError(t, err)
}

func TestPlanCodeFallsBackToFree(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)

	assert.Equal(t, "free", ledger.PlanCode(context.Background(), "nobody"))
}

func TestStatusAllCoversTrackedKeys(t *testing.T) {
	store := openTestStore(t)
	ledger := NewLedger(store, 0)
	ctx := context.Background()

	_, err := ledger.CheckAndConsume(ctx, "user-1", "ai_calls", 1)
	require.NoError(t, err)

	statuses, err := ledger.StatusAll(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, statuses, len(TrackedKeys))

	byKey := make(map[string]Status)
	for _, st := range statuses {
		byKey[st.Key] = st
	}

	assert.Equal(t, 1, byKey["ai_calls"].Used)
	assert.Equal(t, 10, byKey["ai_calls"].Limit)
	assert.InDelta(t, 10.0, byKey["ai_calls"].Percentage, 0.001)
	assert.Equal(t, 0, byKey["briefs"].Used)
	assert.Equal(t, 0, byKey["radar"].Used)
}
