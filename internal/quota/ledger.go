package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/pkg/logger"
)

// Unlimited marks a quota key with no ceiling. Unlimited keys never get a
// counter row.
const Unlimited = -1

const defaultPlanCode = "free"

// defaultEntitlements backs plan resolution when the plan_limits table has no
// rows for a plan code or the read fails.
var defaultEntitlements = map[string]map[string]int{
	"free":    {"ai_calls": 10, "briefs": 3, "radar": 5},
	"starter": {"ai_calls": 100, "briefs": 20, "radar": 50},
	"pro":     {"ai_calls": 500, "briefs": 100, "radar": 200},
	"scale":   {"ai_calls": Unlimited, "briefs": Unlimited, "radar": Unlimited},
}

// TrackedKeys is the set of quota keys reported by status endpoints.
var TrackedKeys = []string{"ai_calls", "briefs", "radar"}

type Status struct {
	Key        string  `json:"key"`
	Used       int     `json:"used"`
	Limit      int     `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// ExceededError reports a consumption attempt over the plan ceiling. The
// counter is never incremented by a failed attempt.
type ExceededError struct {
	Key   string
	Used  int
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: used %d of %d", e.Key, e.Used, e.Limit)
}

// CostCapError reports the global daily cost circuit breaker tripping. It is
// not a per-user quota and is surfaced distinctly.
type CostCapError struct {
	SpentCents int
	CapCents   int
}

func (e *CostCapError) Error() string {
	return fmt.Sprintf("daily cost cap reached: %d of %d cents spent", e.SpentCents, e.CapCents)
}

type Ledger struct {
	store             *sqlite.Client
	dailyCostCapCents int
}

func NewLedger(store *sqlite.Client, dailyCostCapCents int) *Ledger {
	return &Ledger{
		store:             store,
		dailyCostCapCents: dailyCostCapCents,
	}
}

// PeriodStart truncates now to the first calendar day of its UTC month. All
// usage within a month shares one counter.
func PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckAndConsume increments the counter for (user, current period, key) by
// amount, failing with ExceededError and leaving the counter untouched when
// the new total would pass the plan limit. Unlimited keys are always allowed
// and never written.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID, quotaKey string, amount int) (*Status, error) {
	limit := l.resolveLimit(ctx, userID, quotaKey)
	period := PeriodStart(time.Now())

	current, err := l.store.GetQuotaCount(ctx, userID, period, quotaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counter: %w", err)
	}

	if limit == Unlimited {
		return &Status{Key: quotaKey, Used: current, Limit: Unlimited}, nil
	}

	if current+amount > limit {
		logger.Info("Quota exceeded",
			zap.String("user_id", userID),
			zap.String("quota_key", quotaKey),
			zap.Int("used", current),
			zap.Int("limit", limit),
		)
		return nil, &ExceededError{Key: quotaKey, Used: current, Limit: limit}
	}

	total := current + amount
	if err := l.store.UpsertQuotaCount(ctx, userID, period, quotaKey, total); err != nil {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	return &Status{
		Key:        quotaKey,
		Used:       total,
		Limit:      limit,
		Percentage: percentage(total, limit),
	}, nil
}

// CheckOnly reports the current counter without mutating it.
func (l *Ledger) CheckOnly(ctx context.Context, userID, quotaKey string) (*Status, error) {
	limit := l.resolveLimit(ctx, userID, quotaKey)
	period := PeriodStart(time.Now())

	current, err := l.store.GetQuotaCount(ctx, userID, period, quotaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counter: %w", err)
	}

	return &Status{
		Key:        quotaKey,
		Used:       current,
		Limit:      limit,
		Percentage: percentage(current, limit),
	}, nil
}

// StatusAll returns the status of every tracked quota key for one user.
func (l *Ledger) StatusAll(ctx context.Context, userID string) ([]Status, error) {
	statuses := make([]Status, 0, len(TrackedKeys))
	for _, key := range TrackedKeys {
		st, err := l.CheckOnly(ctx, userID, key)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}

// CheckDailyCostCap refuses all fresh generation system-wide once the day's
// non-cached spend meets the cap. It fails open: a store read error is logged
// and the request is allowed, availability over strict enforcement.
func (l *Ledger) CheckDailyCostCap(ctx context.Context) error {
	if l.dailyCostCapCents <= 0 {
		return nil
	}

	spent, err := l.store.SumDailyCostCents(ctx, time.Now().UTC())
	if err != nil {
		logger.Warn("Cost cap check failed, allowing request", zap.Error(err))
		return nil
	}

	if spent >= l.dailyCostCapCents {
		logger.Warn("Daily cost cap reached",
			zap.Int("spent_cents", spent),
			zap.Int("cap_cents", l.dailyCostCapCents),
		)
		return &CostCapError{SpentCents: spent, CapCents: l.dailyCostCapCents}
	}

	return nil
}

// PlanCode resolves the user's plan, falling back to the free plan when the
// user row is missing or unreadable.
func (l *Ledger) PlanCode(ctx context.Context, userID string) string {
	planCode, err := l.store.GetUserPlanCode(ctx, userID)
	if err != nil {
		logger.Warn("Failed to resolve plan, using default", zap.String("user_id", userID), zap.Error(err))
		return defaultPlanCode
	}
	if planCode == "" {
		return defaultPlanCode
	}
	return planCode
}

func (l *Ledger) resolveLimit(ctx context.Context, userID, quotaKey string) int {
	planCode := l.PlanCode(ctx, userID)

	limits, err := l.store.GetPlanLimits(ctx, planCode)
	if err != nil {
		logger.Warn("Failed to read plan limits, using defaults", zap.String("plan", planCode), zap.Error(err))
		limits = nil
	}

	if limit, ok := limits[quotaKey]; ok {
		return limit
	}

	if fallback, ok := defaultEntitlements[planCode]; ok {
		if limit, ok := fallback[quotaKey]; ok {
			return limit
		}
	}

	return defaultEntitlements[defaultPlanCode][quotaKey]
}

func percentage(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
