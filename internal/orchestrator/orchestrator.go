package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/assembler"
	"github.com/lexybrain/backend/internal/capability"
	"github.com/lexybrain/backend/internal/metrics"
	"github.com/lexybrain/backend/internal/modelclient"
	"github.com/lexybrain/backend/internal/quota"
	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/pkg/config"
	"github.com/lexybrain/backend/pkg/hashing"
	"github.com/lexybrain/backend/pkg/logger"
)

// Generator produces a validated insight for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, cap capability.Capability, prompt string, maxTokens int) (*modelclient.Result, error)
}

// Retriever returns ranked grounding chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, queryText, capability, marketplace, language string, limit int) ([]models.CorpusChunk, error)
}

type Request struct {
	Capability  string
	UserID      string
	KeywordIDs  []string
	Query       string
	Marketplace string
	Language    string
	Scope       string
	NicheTerms  []string
	BudgetCents *int64
}

type ModelMetadata struct {
	LatencyMS    int    `json:"latency_ms"`
	TokensIn     int    `json:"tokens_in"`
	TokensOut    int    `json:"tokens_out"`
	CostCents    int    `json:"cost_cents"`
	ModelVersion string `json:"model_version"`
	RequestID    string `json:"request_id,omitempty"`
}

type Response struct {
	OutputType    string             `json:"output_type"`
	Insight       json.RawMessage    `json:"insight"`
	Metrics       json.RawMessage    `json:"metrics,omitempty"`
	References    []models.Reference `json:"references"`
	ModelMetadata *ModelMetadata     `json:"model_metadata,omitempty"`
	SnapshotID    string             `json:"snapshot_id,omitempty"`
	CacheHit      bool               `json:"cache_hit"`
}

type Orchestrator struct {
	store       *sqlite.Client
	assembler   *assembler.Assembler
	retriever   Retriever
	generator   Generator
	ledger      *quota.Ledger
	modelCfg    config.ModelConfig
	corpusLimit int
}

func New(store *sqlite.Client, asm *assembler.Assembler, retriever Retriever, generator Generator, ledger *quota.Ledger, modelCfg config.ModelConfig, corpusLimit int) *Orchestrator {
	return &Orchestrator{
		store:       store,
		assembler:   asm,
		retriever:   retriever,
		generator:   generator,
		ledger:      ledger,
		modelCfg:    modelCfg,
		corpusLimit: corpusLimit,
	}
}

// Run drives one orchestration: assemble context, check the cache, and on a
// miss walk quota, cost cap, corpus retrieval and generation before persisting
// the cache row, the audit snapshot and the usage event. A cache hit never
// touches quota; quota is always consumed before the model is invoked.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	cap, err := capability.Parse(req.Capability)
	if err != nil {
		return nil, err
	}
	cfg := cap.Config()

	bundle, err := o.assembler.Assemble(ctx, req.Scope, req.KeywordIDs, req.Marketplace, req.Language)
	if err != nil {
		if errors.Is(err, assembler.ErrNoKeywords) {
			return nil, fmt.Errorf("%w: requested keywords did not resolve", ErrNoReliableData)
		}
		return nil, fmt.Errorf("failed to assemble context: %w", err)
	}

	inputHash, err := hashing.InsightHash(hashing.InsightInput{
		Capability:   cap.String(),
		Marketplace:  bundle.Marketplace,
		NicheTerms:   req.NicheTerms,
		BudgetCents:  req.BudgetCents,
		KeywordTerms: bundle.Terms,
	})
	if err != nil {
		return nil, err
	}

	planCode := o.ledger.PlanCode(ctx, req.UserID)

	// A cache read failure only costs us the cache, not the run.
	cached, err := o.store.GetCacheEntry(ctx, cap.String(), inputHash)
	if err != nil {
		logger.Warn("Cache read failed, treating as miss", zap.Error(err))
		cached = nil
	}

	if cached != nil {
		metrics.CacheHits.WithLabelValues(cap.String()).Inc()

		ev := &models.UsageEvent{
			UserID:     req.UserID,
			Capability: cap.String(),
			CacheHit:   true,
			LatencyMS:  int(time.Since(start).Milliseconds()),
			PlanCode:   planCode,
			CreatedAt:  time.Now().UTC(),
		}
		if err := o.store.InsertUsageEvent(ctx, ev); err != nil {
			return nil, err
		}

		logger.Info("Insight served from cache",
			zap.String("capability", cap.String()),
			zap.String("input_hash", inputHash),
			zap.String("user_id", req.UserID),
		)

		return &Response{
			OutputType: cfg.OutputType,
			Insight:    cached.Output,
			Metrics:    marshalScores(bundle),
			References: bundleReferences(bundle, nil),
			CacheHit:   true,
		}, nil
	}

	metrics.CacheMisses.WithLabelValues(cap.String()).Inc()

	// Fail fast: never pay for model work the user is not entitled to.
	if _, err := o.ledger.CheckAndConsume(ctx, req.UserID, cfg.QuotaKey, 1); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			metrics.QuotaDenials.WithLabelValues(cfg.QuotaKey).Inc()
		}
		return nil, err
	}

	if err := o.ledger.CheckDailyCostCap(ctx); err != nil {
		metrics.CostCapTrips.Inc()
		return nil, err
	}

	queryText := req.Query
	if queryText == "" {
		queryText = strings.Join(bundle.Terms, " ")
	}

	chunks, err := o.retriever.Retrieve(ctx, queryText, cap.String(), bundle.Marketplace, req.Language, o.corpusLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve corpus: %w", err)
	}
	metrics.RetrievalResultsCount.Observe(float64(len(chunks)))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: corpus retrieval returned no grounding chunks", ErrNoReliableData)
	}

	prompt := modelclient.BuildPrompt(cap, bundle, chunks, req.Query)

	result, err := o.generateWithRetry(ctx, cap, prompt, cfg.MaxTokens)
	if err != nil {
		metrics.InsightTotal.WithLabelValues(cap.String(), "failed").Inc()
		return nil, err
	}

	costCents := o.estimateCostCents(result.TokensIn, result.TokensOut)
	references := bundleReferences(bundle, chunks)
	now := time.Now().UTC()

	entry := &models.CacheEntry{
		InsightType: cap.String(),
		InputHash:   inputHash,
		UserID:      req.UserID,
		Context:     marshalScores(bundle),
		Output:      result.Output,
		Status:      "ready",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(cfg.TTLMinutes) * time.Minute),
	}
	if err := o.store.PutCacheEntry(ctx, entry); err != nil {
		return nil, err
	}

	snapshot := &models.InsightSnapshot{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Capability:  cap.String(),
		Scope:       req.Scope,
		Marketplace: bundle.Marketplace,
		Metrics:     marshalScores(bundle),
		Output:      result.Output,
		References:  references,
		CreatedAt:   now,
	}
	if err := o.store.InsertInsightSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	ev := &models.UsageEvent{
		UserID:       req.UserID,
		Capability:   cap.String(),
		CacheHit:     false,
		LatencyMS:    int(time.Since(start).Milliseconds()),
		TokensIn:     result.TokensIn,
		TokensOut:    result.TokensOut,
		CostCents:    costCents,
		ModelVersion: result.ModelVersion,
		PlanCode:     planCode,
		CreatedAt:    now,
	}
	if err := o.store.InsertUsageEvent(ctx, ev); err != nil {
		return nil, err
	}

	metrics.InsightTotal.WithLabelValues(cap.String(), "generated").Inc()
	metrics.InsightDuration.WithLabelValues(cap.String()).Observe(time.Since(start).Seconds())
	metrics.ModelTokensUsed.WithLabelValues(result.ModelVersion, "prompt").Add(float64(result.TokensIn))
	metrics.ModelTokensUsed.WithLabelValues(result.ModelVersion, "completion").Add(float64(result.TokensOut))
	metrics.ModelCostCents.WithLabelValues(result.ModelVersion).Add(float64(costCents))

	o.dispatchSideEffects(req.UserID, cap, snapshot.ID)

	logger.Info("Insight generated",
		zap.String("capability", cap.String()),
		zap.String("input_hash", inputHash),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("cost_cents", costCents),
		zap.Int("references", len(references)),
	)

	return &Response{
		OutputType: cfg.OutputType,
		Insight:    result.Output,
		Metrics:    marshalScores(bundle),
		References: references,
		ModelMetadata: &ModelMetadata{
			LatencyMS:    result.LatencyMS,
			TokensIn:     result.TokensIn,
			TokensOut:    result.TokensOut,
			CostCents:    costCents,
			ModelVersion: result.ModelVersion,
			RequestID:    result.RequestID,
		},
		SnapshotID: snapshot.ID,
	}, nil
}

// generateWithRetry retries once on retryable failures (upstream unavailable
// or schema validation), then surfaces the last error.
func (o *Orchestrator) generateWithRetry(ctx context.Context, cap capability.Capability, prompt string, maxTokens int) (*modelclient.Result, error) {
	result, err := o.generator.Generate(ctx, cap, prompt, maxTokens)
	if err == nil {
		return result, nil
	}

	var unavail *modelclient.UnavailableError
	var invalid *modelclient.ValidationError
	if !errors.As(err, &unavail) && !errors.As(err, &invalid) {
		return nil, err
	}

	logger.Warn("Generation failed, retrying once",
		zap.String("capability", cap.String()),
		zap.Error(err),
	)

	return o.generator.Generate(ctx, cap, prompt, maxTokens)
}

// dispatchSideEffects runs the post-generation extras that must never delay
// or fail the primary response.
func (o *Orchestrator) dispatchSideEffects(userID string, cap capability.Capability, snapshotID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Side effect panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := o.store.InsertNotification(ctx, &models.Notification{
			UserID:    userID,
			Kind:      "insight_ready",
			Title:     fmt.Sprintf("Your %s is ready", cap.Config().OutputType),
			Body:      snapshotID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			logger.Warn("Notification write failed", zap.Error(err))
		}
	}()
}

func (o *Orchestrator) estimateCostCents(tokensIn, tokensOut int) int {
	cost := float64(tokensIn)/1000*o.modelCfg.PromptCostCentsPerK +
		float64(tokensOut)/1000*o.modelCfg.CompletionCostCentsPerK
	return int(math.Ceil(cost))
}

func marshalScores(bundle *assembler.Bundle) json.RawMessage {
	raw, err := json.Marshal(bundle.Scores)
	if err != nil {
		return nil
	}
	return raw
}

// bundleReferences builds the typed pointers that justify the insight.
func bundleReferences(bundle *assembler.Bundle, chunks []models.CorpusChunk) []models.Reference {
	refs := make([]models.Reference, 0)

	for _, kw := range bundle.Keywords {
		refs = append(refs, models.Reference{Type: "keyword", ID: kw.ID})
	}
	for _, s := range bundle.Daily {
		refs = append(refs, models.Reference{Type: "metric_snapshot", ID: strconv.FormatInt(s.ID, 10)})
	}
	for _, s := range bundle.Weekly {
		refs = append(refs, models.Reference{Type: "metric_snapshot", ID: strconv.FormatInt(s.ID, 10)})
	}
	for _, p := range bundle.Predictions {
		refs = append(refs, models.Reference{Type: "prediction", ID: p.ID})
	}
	for _, r := range bundle.RiskRules {
		refs = append(refs, models.Reference{Type: "risk_rule", ID: r.ID})
	}
	for _, e := range bundle.RiskEvents {
		refs = append(refs, models.Reference{Type: "risk_event", ID: strconv.FormatInt(e.ID, 10)})
	}
	for _, ch := range chunks {
		refs = append(refs, models.Reference{Type: "corpus_chunk", ID: ch.ID})
	}

	return refs
}
