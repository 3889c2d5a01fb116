package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/lexybrain/backend/internal/storage/sqlite"
)

const reportWindow = 500

// Reporter aggregates the usage audit trail into per-user summaries. Reads
// only; the audit rows themselves are written by the orchestration path.
type Reporter struct {
	store *sqlite.Client
}

func NewReporter(store *sqlite.Client) *Reporter {
	return &Reporter{store: store}
}

type CapabilityUsage struct {
	Runs      int `json:"runs"`
	CacheHits int `json:"cache_hits"`
	CostCents int `json:"cost_cents"`
}

type UsageReport struct {
	UserID         string                     `json:"user_id"`
	TotalRuns      int                        `json:"total_runs"`
	CacheHits      int                        `json:"cache_hits"`
	CacheHitRate   float64                    `json:"cache_hit_rate"`
	TotalTokensIn  int                        `json:"total_tokens_in"`
	TotalTokensOut int                        `json:"total_tokens_out"`
	TotalCostCents int                        `json:"total_cost_cents"`
	AvgLatencyMS   float64                    `json:"avg_latency_ms"`
	ByCapability   map[string]CapabilityUsage `json:"by_capability"`
}

// Summarize folds the user's recent usage events into one report. The window
// is capped so a heavy user cannot turn this into a table scan.
func (r *Reporter) Summarize(ctx context.Context, userID string) (*UsageReport, error) {
	events, err := r.store.ListUsageEvents(ctx, userID, reportWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage events: %w", err)
	}

	report := &UsageReport{
		UserID:       userID,
		ByCapability: make(map[string]CapabilityUsage),
	}

	totalLatency := 0
	for _, ev := range events {
		report.TotalRuns++
		if ev.CacheHit {
			report.CacheHits++
		}
		report.TotalTokensIn += ev.TokensIn
		report.TotalTokensOut += ev.TokensOut
		report.TotalCostCents += ev.CostCents
		totalLatency += ev.LatencyMS

		usage := report.ByCapability[ev.Capability]
		usage.Runs++
		if ev.CacheHit {
			usage.CacheHits++
		}
		usage.CostCents += ev.CostCents
		report.ByCapability[ev.Capability] = usage
	}

	if report.TotalRuns > 0 {
		report.CacheHitRate = float64(report.CacheHits) / float64(report.TotalRuns)
		report.AvgLatencyMS = float64(totalLatency) / float64(report.TotalRuns)
	}

	return report, nil
}

// DailySpend returns the platform-wide generation spend for the UTC day.
func (r *Reporter) DailySpend(ctx context.Context, day time.Time) (int, error) {
	return r.store.SumDailyCostCents(ctx, day)
}
