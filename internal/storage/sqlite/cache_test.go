package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexybrain/backend/internal/storage/models"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func testEntry(expiresAt time.Time) *models.CacheEntry {
	return &models.CacheEntry{
		InsightType: "market_brief",
		InputHash:   "abc123",
		UserID:      "user-1",
		Context:     json.RawMessage(`{"terms":["candle"]}`),
		Output:      json.RawMessage(`{"summary":"steady demand"}`),
		Status:      "ready",
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	entry := testEntry(time.Now().UTC().Add(time.Hour))
	require.NoError(t, client.PutCacheEntry(ctx, entry))

	got, err := client.GetCacheEntry(ctx, "market_brief", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.JSONEq(t, `{"summary":"steady demand"}`, string(got.Output))
}

func TestCacheMissOnAbsentKey(t *testing.T) {
	client := openTestClient(t)

	got, err := client.GetCacheEntry(context.Background(), "market_brief", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheLazyExpiry(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	entry := testEntry(time.Now().UTC().Add(-time.Minute))
	require.NoError(t, client.PutCacheEntry(ctx, entry))

	// Expired rows read as a miss but stay in place until overwritten.
	got, err := client.GetCacheEntry(ctx, "market_brief", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int
	err = client.db.QueryRow(`SELECT COUNT(*) FROM insight_cache WHERE input_hash = 'abc123'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCacheUpsertLastWriteWins(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	first := testEntry(time.Now().UTC().Add(time.Hour))
	require.NoError(t, client.PutCacheEntry(ctx, first))

	second := testEntry(time.Now().UTC().Add(2 * time.Hour))
	second.Output = json.RawMessage(`{"summary":"demand rising"}`)
	require.NoError(t, client.PutCacheEntry(ctx, second))

	got, err := client.GetCacheEntry(ctx, "market_brief", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"summary":"demand rising"}`, string(got.Output))

	var count int
	err = client.db.QueryRow(`SELECT COUNT(*) FROM insight_cache`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCacheNonReadyStatusIsMiss(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	entry := testEntry(time.Now().UTC().Add(time.Hour))
	entry.Status = "pending"
	require.NoError(t, client.PutCacheEntry(ctx, entry))

	got, err := client.GetCacheEntry(ctx, "market_brief", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheKeyedByInsightType(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	entry := testEntry(time.Now().UTC().Add(time.Hour))
	require.NoError(t, client.PutCacheEntry(ctx, entry))

	got, err := client.GetCacheEntry(ctx, "radar", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}
