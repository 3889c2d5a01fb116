package assembler

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/pkg/logger"
)

// ErrNoKeywords means keyword identifiers were requested but none resolved.
// The orchestrator treats this as a no-reliable-data failure rather than
// generating from an empty context.
var ErrNoKeywords = errors.New("no keywords resolved for requested identifiers")

const (
	dailyWindowDays  = 60
	weeklyLimit      = 52
	predictionsLimit = 50
	riskEventsLimit  = 100
)

// KeywordScores is the per-keyword signal tuple exposed to prompt building.
type KeywordScores struct {
	Term        string  `json:"term"`
	Demand      float64 `json:"demand"`
	Competition float64 `json:"competition"`
	Trend       float64 `json:"trend"`
	Engagement  float64 `json:"engagement"`
	Opportunity float64 `json:"opportunity"`
}

// Bundle is the assembled read-only context for one orchestration run.
type Bundle struct {
	Marketplace string
	Language    string
	Scope       string
	Terms       []string
	Scores      []KeywordScores
	Keywords    []models.KeywordRecord
	Daily       []models.MetricSnapshot
	Weekly      []models.MetricSnapshot
	Predictions []models.PredictionRecord
	RiskRules   []models.RiskRule
	RiskEvents  []models.RiskEvent
}

type Assembler struct {
	store *sqlite.Client
}

func New(store *sqlite.Client) *Assembler {
	return &Assembler{store: store}
}

// Assemble gathers the context bundle for the given scope. Keyword resolution
// is the only gating fetch; every other sub-fetch is additive and degrades to
// an empty list on failure.
func (a *Assembler) Assemble(ctx context.Context, scope string, keywordIDs []string, marketplace, language string) (*Bundle, error) {
	ids := dedupe(keywordIDs)

	var keywords []models.KeywordRecord
	if len(ids) > 0 {
		var err error
		keywords, err = a.store.GetKeywords(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(keywords) == 0 {
			return nil, ErrNoKeywords
		}
	}

	bundle := &Bundle{
		Marketplace: marketplace,
		Language:    language,
		Scope:       scope,
		Keywords:    keywords,
	}

	for _, kw := range keywords {
		bundle.Terms = append(bundle.Terms, kw.Term)
		bundle.Scores = append(bundle.Scores, KeywordScores{
			Term:        kw.Term,
			Demand:      kw.DemandScore,
			Competition: kw.CompetitionScore,
			Trend:       kw.TrendMomentum,
			Engagement:  kw.EngagementScore,
			Opportunity: kw.OpportunityScore,
		})
		if bundle.Marketplace == "" {
			bundle.Marketplace = kw.Marketplace
		}
	}

	// The remaining reads are independent; each failure only costs its own
	// slice, never the run.
	var wg conc.WaitGroup

	wg.Go(func() {
		since := time.Now().UTC().AddDate(0, 0, -dailyWindowDays)
		daily, err := a.store.GetDailyMetrics(ctx, ids, since)
		if err != nil {
			logger.Warn("Daily metrics fetch failed", zap.Error(err))
			return
		}
		bundle.Daily = daily
	})

	wg.Go(func() {
		weekly, err := a.store.GetWeeklyMetrics(ctx, ids, weeklyLimit)
		if err != nil {
			logger.Warn("Weekly metrics fetch failed", zap.Error(err))
			return
		}
		bundle.Weekly = weekly
	})

	wg.Go(func() {
		preds, err := a.store.GetPredictions(ctx, ids, marketplace, predictionsLimit)
		if err != nil {
			logger.Warn("Predictions fetch failed", zap.Error(err))
			return
		}
		bundle.Predictions = preds
	})

	wg.Go(func() {
		rules, err := a.store.GetRiskRules(ctx, marketplace)
		if err != nil {
			logger.Warn("Risk rules fetch failed", zap.Error(err))
			return
		}
		bundle.RiskRules = rules

		events, err := a.store.GetRiskEvents(ctx, ids, marketplace, riskEventsLimit)
		if err != nil {
			logger.Warn("Risk events fetch failed", zap.Error(err))
			return
		}
		bundle.RiskEvents = events
	})

	wg.Wait()

	logger.Debug("Context assembled",
		zap.Int("keywords", len(bundle.Keywords)),
		zap.Int("daily_metrics", len(bundle.Daily)),
		zap.Int("weekly_metrics", len(bundle.Weekly)),
		zap.Int("predictions", len(bundle.Predictions)),
		zap.Int("risk_events", len(bundle.RiskEvents)),
	)

	return bundle, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
