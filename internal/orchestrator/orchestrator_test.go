package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexybrain/backend/internal/assembler"
	"github.com/lexybrain/backend/internal/capability"
	"github.com/lexybrain/backend/internal/modelclient"
	"github.com/lexybrain/backend/internal/quota"
	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/pkg/config"
	"github.com/lexybrain/backend/pkg/hashing"
)

const briefOutput = `{"summary":"Steady demand.","opportunities":["gift bundles"],"risks":["clay prices"],"confidence":0.8}`

type fakeGenerator struct {
	calls   int
	errs    []error
	output  string
	latency int
}

func (g *fakeGenerator) Generate(_ context.Context, _ capability.Capability, _ string, _ int) (*modelclient.Result, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := g.output
	if out == "" {
		out = briefOutput
	}
	return &modelclient.Result{
		Output:       json.RawMessage(out),
		LatencyMS:    g.latency,
		TokensIn:     1000,
		TokensOut:    500,
		ModelVersion: "lexy-insight-1",
		RequestID:    "req-1",
	}, nil
}

type fakeRetriever struct {
	calls  int
	chunks []models.CorpusChunk
	err    error
}

func (r *fakeRetriever) Retrieve(_ context.Context, _, _, _, _ string, _ int) ([]models.CorpusChunk, error) {
	r.calls++
	return r.chunks, r.err
}

func someChunks() []models.CorpusChunk {
	return []models.CorpusChunk{
		{ID: "chunk-1", Chunk: "mugs sell in winter", Capability: "market_brief"},
	}
}

type fixture struct {
	store     *sqlite.Client
	generator *fakeGenerator
	retriever *fakeRetriever
	ledger    *quota.Ledger
	orch      *Orchestrator
}

func newFixture(t *testing.T, costCapCents int) *fixture {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())

	require.NoError(t, store.UpsertKeyword(context.Background(), &models.KeywordRecord{
		ID:          "kw-1",
		Term:        "ceramic mugs",
		Marketplace: "etsy",
		DemandScore: 0.8,
		UpdatedAt:   time.Now().UTC(),
	}))

	generator := &fakeGenerator{}
	retriever := &fakeRetriever{chunks: someChunks()}
	ledger := quota.NewLedger(store, costCapCents)

	modelCfg := config.ModelConfig{
		PromptCostCentsPerK:     0.3,
		CompletionCostCentsPerK: 1.2,
	}

	orch := New(store, assembler.New(store), retriever, generator, ledger, modelCfg, 8)

	return &fixture{
		store:     store,
		generator: generator,
		retriever: retriever,
		ledger:    ledger,
		orch:      orch,
	}
}

func briefRequest() Request {
	return Request{
		Capability:  "market_brief",
		UserID:      "user-1",
		KeywordIDs:  []string{"kw-1"},
		Query:       "how are ceramic mugs doing",
		Marketplace: "etsy",
		Language:    "en",
		Scope:       "niche",
	}
}

func TestRunGeneratesAndPersists(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	resp, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)

	assert.False(t, resp.CacheHit)
	assert.Equal(t, "market_brief", resp.OutputType)
	assert.JSONEq(t, briefOutput, string(resp.Insight))
	assert.NotEmpty(t, resp.SnapshotID)
	require.NotNil(t, resp.ModelMetadata)
	// 1000 prompt tokens at 0.3c/K plus 500 completion at 1.2c/K, rounded up.
	assert.Equal(t, 1, resp.ModelMetadata.CostCents)
	assert.Equal(t, 1, f.generator.calls)

	refIDs := make(map[string]bool)
	for _, ref := range resp.References {
		refIDs[ref.Type+":"+ref.ID] = true
	}
	assert.True(t, refIDs["keyword:kw-1"])
	assert.True(t, refIDs["corpus_chunk:chunk-1"])

	snap, err := f.store.GetInsightSnapshot(ctx, resp.SnapshotID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "user-1", snap.UserID)

	events, err := f.store.ListUsageEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].CacheHit)
	assert.Equal(t, 1000, events[0].TokensIn)
}

func TestRunCacheHitSkipsQuotaAndModel(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)

	usedAfterFirst, err := f.ledger.CheckOnly(ctx, "user-1", "briefs")
	require.NoError(t, err)
	assert.Equal(t, 1, usedAfterFirst.Used)

	resp, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)

	assert.True(t, resp.CacheHit)
	assert.JSONEq(t, briefOutput, string(resp.Insight))
	assert.Empty(t, resp.SnapshotID)
	assert.Nil(t, resp.ModelMetadata)
	assert.Equal(t, 1, f.generator.calls)

	// The hit consumed nothing.
	usedAfterSecond, err := f.ledger.CheckOnly(ctx, "user-1", "briefs")
	require.NoError(t, err)
	assert.Equal(t, 1, usedAfterSecond.Used)

	// But it still left an audit row.
	events, err := f.store.ListUsageEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestRunDifferentTermOrderHitsSameEntry(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertKeyword(ctx, &models.KeywordRecord{
		ID: "kw-2", Term: "stoneware bowls", Marketplace: "etsy", UpdatedAt: time.Now().UTC(),
	}))

	req := briefRequest()
	req.KeywordIDs = []string{"kw-1", "kw-2"}
	req.NicheTerms = []string{"pottery", "ceramics"}
	_, err := f.orch.Run(ctx, req)
	require.NoError(t, err)

	reordered := briefRequest()
	reordered.KeywordIDs = []string{"kw-2", "kw-1"}
	reordered.NicheTerms = []string{"Ceramics", "POTTERY"}
	resp, err := f.orch.Run(ctx, reordered)
	require.NoError(t, err)

	assert.True(t, resp.CacheHit)
	assert.Equal(t, 1, f.generator.calls)
}

func TestRunQuotaExceededBeforeModel(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// Free plan: 3 briefs. Force misses by varying the niche terms.
	for i, term := range []string{"a", "b", "c"} {
		req := briefRequest()
		req.NicheTerms = []string{term}
		_, err := f.orch.Run(ctx, req)
		require.NoError(t, err, "run %d", i)
	}

	req := briefRequest()
	req.NicheTerms = []string{"d"}
	_, err := f.orch.Run(ctx, req)
	require.Error(t, err)

	kind, ok := FailureKind(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, kind)
	assert.Equal(t, 3, f.generator.calls)
}

func TestRunCostCapBlocksGeneration(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	require.NoError(t, f.store.InsertUsageEvent(ctx, &models.UsageEvent{
		UserID:     "someone-else",
		Capability: "market_brief",
		CacheHit:   false,
		CostCents:  50,
		CreatedAt:  time.Now().UTC(),
	}))

	_, err := f.orch.Run(ctx, briefRequest())
	require.Error(t, err)

	kind, ok := FailureKind(err)
	require.True(t, ok)
	assert.Equal(t, KindCostCapReached, kind)
	assert.Zero(t, f.generator.calls)
}

func TestRunEmptyCorpusHardStop(t *testing.T) {
	f := newFixture(t, 0)
	f.retriever.chunks = nil

	_, err := f.orch.Run(context.Background(), briefRequest())
	require.Error(t, err)

	kind, ok := FailureKind(err)
	require.True(t, ok)
	assert.Equal(t, KindNoData, kind)
	assert.Zero(t, f.generator.calls)
}

func TestRunUnresolvedKeywordsHardStop(t *testing.T) {
	f := newFixture(t, 0)

	req := briefRequest()
	req.KeywordIDs = []string{"ghost-keyword"}
	_, err := f.orch.Run(context.Background(), req)
	require.Error(t, err)

	kind, ok := FailureKind(err)
	require.True(t, ok)
	assert.Equal(t, KindNoData, kind)
	assert.Zero(t, f.retriever.calls)
	assert.Zero(t, f.generator.calls)
}

func TestRunRetriesGenerationOnce(t *testing.T) {
	f := newFixture(t, 0)
	f.generator.errs = []error{&modelclient.UnavailableError{StatusCode: 503}}

	resp, err := f.orch.Run(context.Background(), briefRequest())
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 2, f.generator.calls)
}

func TestRunFailsAfterSecondGenerationError(t *testing.T) {
	f := newFixture(t, 0)
	f.generator.errs = []error{
		&modelclient.ValidationError{Capability: "market_brief", Detail: "missing summary"},
		&modelclient.ValidationError{Capability: "market_brief", Detail: "missing summary"},
	}

	_, err := f.orch.Run(context.Background(), briefRequest())
	require.Error(t, err)

	kind, ok := FailureKind(err)
	require.True(t, ok)
	assert.Equal(t, KindGenerationFailed, kind)
	assert.Equal(t, 2, f.generator.calls)

	// A failed run never leaves a cache row behind.
	entries, err := f.store.GetCacheEntry(context.Background(), "market_brief", "anything")
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRunExpiredEntryRegenerates(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	resp, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)
	require.Equal(t, 1, f.generator.calls)

	// Age the cached row past its TTL. The hash mirrors what Run computes for
	// briefRequest: one resolved keyword term, no niche terms, no budget.
	inputHash, err := hashing.InsightHash(hashing.InsightInput{
		Capability:   "market_brief",
		Marketplace:  "etsy",
		KeywordTerms: []string{"ceramic mugs"},
	})
	require.NoError(t, err)

	expired := &models.CacheEntry{
		InsightType: "market_brief",
		InputHash:   inputHash,
		UserID:      "user-1",
		Output:      resp.Insight,
		Status:      "ready",
		CreatedAt:   time.Now().UTC().Add(-48 * time.Hour),
		ExpiresAt:   time.Now().UTC().Add(-24 * time.Hour),
	}
	require.NoError(t, f.store.PutCacheEntry(ctx, expired))

	again, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)
	assert.False(t, again.CacheHit)
	assert.Equal(t, 2, f.generator.calls)

	// The regeneration overwrote the expired row: a third run hits.
	third, err := f.orch.Run(ctx, briefRequest())
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.Equal(t, 2, f.generator.calls)
}

func TestRunUnknownCapability(t *testing.T) {
	f := newFixture(t, 0)

	req := briefRequest()
	req.Capability = "palm_reading"
	_, err := f.orch.Run(context.Background(), req)
	assert.ErrorIs(t, err, capability.ErrUnknown)
}
