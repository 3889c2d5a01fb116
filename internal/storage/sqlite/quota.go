package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lexybrain/backend/internal/storage/models"
)

func (c *Client) UpsertUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, plan_code) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET plan_code = excluded.plan_code
	`

	_, err := c.db.ExecContext(ctx, query, user.ID, user.PlanCode)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

func (c *Client) GetUserPlanCode(ctx context.Context, userID string) (string, error) {
	var planCode string
	err := c.db.QueryRowContext(ctx, `SELECT plan_code FROM users WHERE id = ?`, userID).Scan(&planCode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user plan: %w", err)
	}
	return planCode, nil
}

func (c *Client) SetPlanLimit(ctx context.Context, limit *models.PlanLimit) error {
	query := `
		INSERT INTO plan_limits (plan_code, quota_key, max_count) VALUES (?, ?, ?)
		ON CONFLICT(plan_code, quota_key) DO UPDATE SET max_count = excluded.max_count
	`

	_, err := c.db.ExecContext(ctx, query, limit.PlanCode, limit.QuotaKey, limit.Limit)
	if err != nil {
		return fmt.Errorf("failed to set plan limit: %w", err)
	}

	return nil
}

func (c *Client) GetPlanLimits(ctx context.Context, planCode string) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT quota_key, max_count FROM plan_limits WHERE plan_code = ?`, planCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan limits: %w", err)
	}
	defer rows.Close()

	limits := make(map[string]int)
	for rows.Next() {
		var key string
		var limit int
		if err := rows.Scan(&key, &limit); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		limits[key] = limit
	}

	return limits, rows.Err()
}

// GetQuotaCount returns the counter for (user, period, key), zero when absent.
func (c *Client) GetQuotaCount(ctx context.Context, userID string, periodStart time.Time, quotaKey string) (int, error) {
	var count int
	err := c.db.QueryRowContext(
		ctx,
		`SELECT count FROM quota_counters WHERE user_id = ? AND period_start = ? AND quota_key = ?`,
		userID, periodStart.Unix(), quotaKey,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get quota count: %w", err)
	}
	return count, nil
}

// UpsertQuotaCount writes the new running total. The conflict key makes the
// write idempotent for a retried logical request carrying the same total.
func (c *Client) UpsertQuotaCount(ctx context.Context, userID string, periodStart time.Time, quotaKey string, total int) error {
	query := `
		INSERT INTO quota_counters (user_id, period_start, quota_key, count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, period_start, quota_key) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query, userID, periodStart.Unix(), quotaKey, total, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert quota count: %w", err)
	}

	return nil
}
