package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexybrain/backend/internal/storage/models"
)

func testSnapshot(id, userID string) *models.InsightSnapshot {
	return &models.InsightSnapshot{
		ID:          id,
		UserID:      userID,
		Capability:  "market_brief",
		Scope:       "niche",
		Marketplace: "etsy",
		Metrics:     json.RawMessage(`{"search_volume":1200}`),
		Output:      json.RawMessage(`{"summary":"steady demand"}`),
		References: []models.Reference{
			{Type: "keyword", ID: "kw-1"},
			{Type: "corpus_chunk", ID: "chunk-1"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	snap := testSnapshot("snap-1", "user-1")
	require.NoError(t, client.InsertInsightSnapshot(ctx, snap))

	got, err := client.GetInsightSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.JSONEq(t, `{"summary":"steady demand"}`, string(got.Output))
	assert.JSONEq(t, `{"search_volume":1200}`, string(got.Metrics))
	assert.Equal(t, snap.References, got.References)
}

func TestSnapshotMissOnAbsentID(t *testing.T) {
	client := openTestClient(t)

	got, err := client.GetInsightSnapshot(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotCorruptReferencesSurfaceError(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	_, err := client.db.ExecContext(ctx,
		`INSERT INTO insight_snapshots (id, user_id, capability, output, refs, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"snap-bad", "user-1", "market_brief", `{}`, `{not json`, time.Now().Unix())
	require.NoError(t, err)

	_, err = client.GetInsightSnapshot(ctx, "snap-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references")
}

func TestListSnapshotsByUser(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	first := testSnapshot("snap-1", "user-1")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, client.InsertInsightSnapshot(ctx, first))
	require.NoError(t, client.InsertInsightSnapshot(ctx, testSnapshot("snap-2", "user-1")))
	require.NoError(t, client.InsertInsightSnapshot(ctx, testSnapshot("snap-3", "user-2")))

	snaps, err := client.ListInsightSnapshots(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "snap-2", snaps[0].ID)
	assert.Equal(t, "snap-1", snaps[1].ID)
	assert.JSONEq(t, `{"summary":"steady demand"}`, string(snaps[0].Output))
	assert.Equal(t, first.References, snaps[1].References)
}
