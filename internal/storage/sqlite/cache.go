package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/pkg/logger"
)

// GetCacheEntry returns nil on a miss. A row whose expiry is in the past is a
// miss too: expired rows are not deleted here, they are simply skipped and
// eventually overwritten by the next PutCacheEntry for the same key.
func (c *Client) GetCacheEntry(ctx context.Context, insightType, inputHash string) (*models.CacheEntry, error) {
	query := `
		SELECT insight_type, input_hash, COALESCE(user_id, ''), COALESCE(context, ''), output, status, created_at, expires_at
		FROM insight_cache
		WHERE insight_type = ? AND input_hash = ?
	`

	var entry models.CacheEntry
	var contextJSON, outputJSON string
	var createdAt, expiresAt int64

	err := c.db.QueryRowContext(ctx, query, insightType, inputHash).Scan(
		&entry.InsightType,
		&entry.InputHash,
		&entry.UserID,
		&contextJSON,
		&outputJSON,
		&entry.Status,
		&createdAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.Context = []byte(contextJSON)
	entry.Output = []byte(outputJSON)
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()
	entry.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if entry.Status != "ready" || !entry.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}

	return &entry, nil
}

// PutCacheEntry upserts on (insight_type, input_hash). A race between two
// concurrent generations for the identical input converges to one row,
// last write wins.
func (c *Client) PutCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO insight_cache (insight_type, input_hash, user_id, context, output, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(insight_type, input_hash) DO UPDATE SET
			user_id = excluded.user_id,
			context = excluded.context,
			output = excluded.output,
			status = excluded.status,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		entry.InsightType,
		entry.InputHash,
		entry.UserID,
		string(entry.Context),
		string(entry.Output),
		entry.Status,
		entry.CreatedAt.Unix(),
		entry.ExpiresAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	logger.Debug("Cache entry stored",
		zap.String("insight_type", entry.InsightType),
		zap.String("input_hash", entry.InputHash),
		zap.Time("expires_at", entry.ExpiresAt),
	)

	return nil
}
