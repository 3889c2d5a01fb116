package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexybrain/backend/internal/storage/models"
)

func (c *Client) UpsertKeyword(ctx context.Context, kw *models.KeywordRecord) error {
	query := `
		INSERT INTO keywords (id, term, marketplace, demand_score, competition_score,
			trend_momentum, engagement_score, opportunity_score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			demand_score = excluded.demand_score,
			competition_score = excluded.competition_score,
			trend_momentum = excluded.trend_momentum,
			engagement_score = excluded.engagement_score,
			opportunity_score = excluded.opportunity_score,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		kw.ID,
		kw.Term,
		kw.Marketplace,
		kw.DemandScore,
		kw.CompetitionScore,
		kw.TrendMomentum,
		kw.EngagementScore,
		kw.OpportunityScore,
		kw.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert keyword: %w", err)
	}

	return nil
}

func (c *Client) GetKeywords(ctx context.Context, ids []string) ([]models.KeywordRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, term, marketplace, demand_score, competition_score,
			trend_momentum, engagement_score, opportunity_score, updated_at
		FROM keywords
		WHERE id IN (%s)
	`, placeholders(len(ids)))

	rows, err := c.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get keywords: %w", err)
	}
	defer rows.Close()

	var records []models.KeywordRecord
	for rows.Next() {
		var kw models.KeywordRecord
		var updatedAt int64

		err := rows.Scan(
			&kw.ID,
			&kw.Term,
			&kw.Marketplace,
			&kw.DemandScore,
			&kw.CompetitionScore,
			&kw.TrendMomentum,
			&kw.EngagementScore,
			&kw.OpportunityScore,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		kw.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		records = append(records, kw)
	}

	return records, rows.Err()
}

func (c *Client) InsertMetricSnapshot(ctx context.Context, snap *models.MetricSnapshot) error {
	metricsJSON, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `INSERT INTO metric_snapshots (keyword_id, granularity, metrics, observed_at) VALUES (?, ?, ?, ?)`

	_, err = c.db.ExecContext(ctx, query, snap.KeywordID, snap.Granularity, string(metricsJSON), snap.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert metric snapshot: %w", err)
	}

	return nil
}

// GetDailyMetrics returns daily snapshots for the given keywords observed at
// or after since, newest first.
func (c *Client) GetDailyMetrics(ctx context.Context, ids []string, since time.Time) ([]models.MetricSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, keyword_id, granularity, metrics, observed_at
		FROM metric_snapshots
		WHERE keyword_id IN (%s) AND granularity = 'daily' AND observed_at >= ?
		ORDER BY observed_at DESC
	`, placeholders(len(ids)))

	args := append(toArgs(ids), since.Unix())
	return c.queryMetricSnapshots(ctx, query, args...)
}

// GetWeeklyMetrics returns the most recent weekly snapshots for the given
// keywords, capped at limit across the whole set.
func (c *Client) GetWeeklyMetrics(ctx context.Context, ids []string, limit int) ([]models.MetricSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, keyword_id, granularity, metrics, observed_at
		FROM metric_snapshots
		WHERE keyword_id IN (%s) AND granularity = 'weekly'
		ORDER BY observed_at DESC
		LIMIT ?
	`, placeholders(len(ids)))

	args := append(toArgs(ids), limit)
	return c.queryMetricSnapshots(ctx, query, args...)
}

func (c *Client) queryMetricSnapshots(ctx context.Context, query string, args ...interface{}) ([]models.MetricSnapshot, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.MetricSnapshot
	for rows.Next() {
		var s models.MetricSnapshot
		var metricsJSON string
		var observedAt int64

		err := rows.Scan(&s.ID, &s.KeywordID, &s.Granularity, &metricsJSON, &observedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(metricsJSON), &s.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot metrics: %w", err)
		}
		s.ObservedAt = time.Unix(observedAt, 0).UTC()
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

func (c *Client) InsertPrediction(ctx context.Context, p *models.PredictionRecord) error {
	metricsJSON, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction metrics: %w", err)
	}

	query := `INSERT INTO predictions (id, keyword_id, horizon, metrics, generated_at) VALUES (?, ?, ?, ?, ?)`

	_, err = c.db.ExecContext(ctx, query, p.ID, p.KeywordID, p.Horizon, string(metricsJSON), p.GeneratedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

func (c *Client) GetPredictions(ctx context.Context, ids []string, marketplace string, limit int) ([]models.PredictionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.keyword_id, p.horizon, p.metrics, p.generated_at
		FROM predictions p
		JOIN keywords k ON k.id = p.keyword_id
		WHERE p.keyword_id IN (%s)
	`, placeholders(len(ids)))

	args := toArgs(ids)
	if marketplace != "" {
		query += " AND k.marketplace = ?"
		args = append(args, marketplace)
	}
	query += " ORDER BY p.generated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get predictions: %w", err)
	}
	defer rows.Close()

	var preds []models.PredictionRecord
	for rows.Next() {
		var p models.PredictionRecord
		var metricsJSON string
		var generatedAt int64

		err := rows.Scan(&p.ID, &p.KeywordID, &p.Horizon, &metricsJSON, &generatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(metricsJSON), &p.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prediction metrics: %w", err)
		}
		p.GeneratedAt = time.Unix(generatedAt, 0).UTC()
		preds = append(preds, p)
	}

	return preds, rows.Err()
}

func (c *Client) InsertRiskRule(ctx context.Context, r *models.RiskRule) error {
	query := `INSERT OR IGNORE INTO risk_rules (id, name, severity, marketplace, description) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, r.ID, r.Name, r.Severity, r.Marketplace, r.Description)
	if err != nil {
		return fmt.Errorf("failed to insert risk rule: %w", err)
	}

	return nil
}

// GetRiskRules returns global rules plus rules scoped to the given marketplace.
func (c *Client) GetRiskRules(ctx context.Context, marketplace string) ([]models.RiskRule, error) {
	query := `
		SELECT id, name, severity, COALESCE(marketplace, ''), COALESCE(description, '')
		FROM risk_rules
		WHERE marketplace IS NULL OR marketplace = '' OR marketplace = ?
	`

	rows, err := c.db.QueryContext(ctx, query, marketplace)
	if err != nil {
		return nil, fmt.Errorf("failed to get risk rules: %w", err)
	}
	defer rows.Close()

	var rules []models.RiskRule
	for rows.Next() {
		var r models.RiskRule
		err := rows.Scan(&r.ID, &r.Name, &r.Severity, &r.Marketplace, &r.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rules = append(rules, r)
	}

	return rules, rows.Err()
}

func (c *Client) InsertRiskEvent(ctx context.Context, e *models.RiskEvent) error {
	query := `INSERT INTO risk_events (keyword_id, rule_id, marketplace, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, e.KeywordID, e.RuleID, e.Marketplace, e.Detail, e.OccurredAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert risk event: %w", err)
	}

	return nil
}

func (c *Client) GetRiskEvents(ctx context.Context, ids []string, marketplace string, limit int) ([]models.RiskEvent, error) {
	query := `
		SELECT id, COALESCE(keyword_id, ''), COALESCE(rule_id, ''), COALESCE(marketplace, ''), COALESCE(detail, ''), occurred_at
		FROM risk_events
		WHERE 1 = 1
	`

	var args []interface{}
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND keyword_id IN (%s)", placeholders(len(ids)))
		args = append(args, toArgs(ids)...)
	}
	if marketplace != "" {
		query += " AND marketplace = ?"
		args = append(args, marketplace)
	}
	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get risk events: %w", err)
	}
	defer rows.Close()

	var events []models.RiskEvent
	for rows.Next() {
		var e models.RiskEvent
		var occurredAt int64

		err := rows.Scan(&e.ID, &e.KeywordID, &e.RuleID, &e.Marketplace, &e.Detail, &occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.OccurredAt = time.Unix(occurredAt, 0).UTC()
		events = append(events, e)
	}

	return events, rows.Err()
}
