package sqlite

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/pkg/logger"
)

func (c *Client) InsertCorpusChunk(ctx context.Context, chunk *models.CorpusChunk) error {
	hasEmbedding := 0
	if chunk.HasEmbedding {
		hasEmbedding = 1
	}

	query := `
		INSERT INTO corpus_chunks (id, scope, source_type, capability, marketplace, language, chunk, has_embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chunk = excluded.chunk,
			has_embedding = excluded.has_embedding
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		chunk.ID,
		chunk.Scope,
		chunk.SourceType,
		chunk.Capability,
		chunk.Marketplace,
		chunk.Language,
		chunk.Chunk,
		hasEmbedding,
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert corpus chunk: %w", err)
	}

	logger.Debug("Corpus chunk stored",
		zap.String("chunk_id", chunk.ID),
		zap.String("capability", chunk.Capability),
	)

	return nil
}

// ListCorpusChunks returns candidate chunks for one capability. Marketplace
// and language narrow the set only when provided.
func (c *Client) ListCorpusChunks(ctx context.Context, capability, marketplace, language string) ([]models.CorpusChunk, error) {
	query := `
		SELECT id, scope, source_type, capability, COALESCE(marketplace, ''), COALESCE(language, ''), chunk, has_embedding, created_at
		FROM corpus_chunks
		WHERE capability = ?
	`

	args := []interface{}{capability}
	if marketplace != "" {
		query += " AND (marketplace IS NULL OR marketplace = '' OR marketplace = ?)"
		args = append(args, marketplace)
	}
	if language != "" {
		query += " AND (language IS NULL OR language = '' OR language = ?)"
		args = append(args, language)
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.CorpusChunk
	for rows.Next() {
		var ch models.CorpusChunk
		var hasEmbedding int
		var createdAt int64

		err := rows.Scan(&ch.ID, &ch.Scope, &ch.SourceType, &ch.Capability, &ch.Marketplace, &ch.Language, &ch.Chunk, &hasEmbedding, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		ch.HasEmbedding = hasEmbedding == 1
		ch.CreatedAt = time.Unix(createdAt, 0).UTC()
		chunks = append(chunks, ch)
	}

	return chunks, rows.Err()
}
