package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/pkg/logger"
)

func (c *Client) InsertUsageEvent(ctx context.Context, ev *models.UsageEvent) error {
	cacheHit := 0
	if ev.CacheHit {
		cacheHit = 1
	}

	query := `
		INSERT INTO usage_events (user_id, capability, cache_hit, latency_ms, tokens_in, tokens_out,
			cost_cents, model_version, plan_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		ev.UserID,
		ev.Capability,
		cacheHit,
		ev.LatencyMS,
		ev.TokensIn,
		ev.TokensOut,
		ev.CostCents,
		ev.ModelVersion,
		ev.PlanCode,
		ev.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	logger.Debug("Usage event recorded",
		zap.String("user_id", ev.UserID),
		zap.String("capability", ev.Capability),
		zap.Bool("cache_hit", ev.CacheHit),
		zap.Int("cost_cents", ev.CostCents),
	)

	return nil
}

// SumDailyCostCents sums cost over fresh (non-cache-hit) usage events for the
// UTC day containing day.
func (c *Client) SumDailyCostCents(ctx context.Context, day time.Time) (int, error) {
	dayStart := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var total sql.NullInt64
	err := c.db.QueryRowContext(
		ctx,
		`SELECT SUM(cost_cents) FROM usage_events WHERE cache_hit = 0 AND created_at >= ? AND created_at < ?`,
		dayStart.Unix(), dayEnd.Unix(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily cost: %w", err)
	}

	return int(total.Int64), nil
}

func (c *Client) ListUsageEvents(ctx context.Context, userID string, limit int) ([]models.UsageEvent, error) {
	query := `
		SELECT id, user_id, capability, cache_hit, latency_ms, tokens_in, tokens_out,
			cost_cents, COALESCE(model_version, ''), COALESCE(plan_code, ''), created_at
		FROM usage_events
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	var events []models.UsageEvent
	for rows.Next() {
		var ev models.UsageEvent
		var cacheHit int
		var createdAt int64

		err := rows.Scan(&ev.ID, &ev.UserID, &ev.Capability, &cacheHit, &ev.LatencyMS,
			&ev.TokensIn, &ev.TokensOut, &ev.CostCents, &ev.ModelVersion, &ev.PlanCode, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		ev.CacheHit = cacheHit == 1
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, ev)
	}

	return events, rows.Err()
}

func (c *Client) InsertInsightSnapshot(ctx context.Context, snap *models.InsightSnapshot) error {
	refsJSON, err := json.Marshal(snap.References)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}

	query := `
		INSERT INTO insight_snapshots (id, user_id, capability, scope, marketplace, metrics, output, refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(
		ctx,
		query,
		snap.ID,
		snap.UserID,
		snap.Capability,
		snap.Scope,
		snap.Marketplace,
		string(snap.Metrics),
		string(snap.Output),
		string(refsJSON),
		snap.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert insight snapshot: %w", err)
	}

	logger.Info("Insight snapshot recorded",
		zap.String("snapshot_id", snap.ID),
		zap.String("capability", snap.Capability),
		zap.Int("references", len(snap.References)),
	)

	return nil
}

func (c *Client) GetInsightSnapshot(ctx context.Context, id string) (*models.InsightSnapshot, error) {
	query := `
		SELECT id, user_id, capability, COALESCE(scope, ''), COALESCE(marketplace, ''), COALESCE(metrics, ''), output, COALESCE(refs, '[]'), created_at
		FROM insight_snapshots
		WHERE id = ?
	`

	var snap models.InsightSnapshot
	var metricsJSON, outputJSON, refsJSON string
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&snap.ID,
		&snap.UserID,
		&snap.Capability,
		&snap.Scope,
		&snap.Marketplace,
		&metricsJSON,
		&outputJSON,
		&refsJSON,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight snapshot: %w", err)
	}

	snap.Metrics = []byte(metricsJSON)
	snap.Output = []byte(outputJSON)
	if err := json.Unmarshal([]byte(refsJSON), &snap.References); err != nil {
		return nil, fmt.Errorf("failed to unmarshal references: %w", err)
	}
	snap.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &snap, nil
}

func (c *Client) ListInsightSnapshots(ctx context.Context, userID string, limit int) ([]models.InsightSnapshot, error) {
	query := `
		SELECT id, user_id, capability, COALESCE(scope, ''), COALESCE(marketplace, ''), output, COALESCE(refs, '[]'), created_at
		FROM insight_snapshots
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list insight snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.InsightSnapshot
	for rows.Next() {
		var snap models.InsightSnapshot
		var outputJSON, refsJSON string
		var createdAt int64

		err := rows.Scan(&snap.ID, &snap.UserID, &snap.Capability, &snap.Scope, &snap.Marketplace, &outputJSON, &refsJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		snap.Output = []byte(outputJSON)
		if err := json.Unmarshal([]byte(refsJSON), &snap.References); err != nil {
			return nil, fmt.Errorf("failed to unmarshal references: %w", err)
		}
		snap.CreatedAt = time.Unix(createdAt, 0).UTC()
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

func (c *Client) InsertNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, kind, title, body, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, n.UserID, n.Kind, n.Title, n.Body, n.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}
