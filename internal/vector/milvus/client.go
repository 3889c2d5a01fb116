package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/pkg/logger"
	"github.com/lexybrain/backend/pkg/retry"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	retryConfig    retry.Config
}

// Match is one vector-similarity hit against the corpus collection.
type Match struct {
	ChunkID string
	Score   float32
}

// ChunkVector is the embedding row written for one corpus chunk.
type ChunkVector struct {
	ChunkID     string
	Embedding   []float32
	Capability  string
	Marketplace string
	Language    string
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	cfg := retry.DefaultConfig()
	cfg.Logger = logger.GetLogger()

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		retryConfig:    cfg,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Knowledge corpus embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "capability",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "marketplace",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "language",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, vectors []ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	capabilities := make([]string, len(vectors))
	marketplaces := make([]string, len(vectors))
	languages := make([]string, len(vectors))
	timestamps := make([]int64, len(vectors))

	now := time.Now().Unix()
	for i, v := range vectors {
		chunkIDs[i] = v.ChunkID
		embeddings[i] = v.Embedding
		capabilities[i] = v.Capability
		marketplaces[i] = v.Marketplace
		languages[i] = v.Language
		timestamps[i] = now
	}

	err := retry.Do(ctx, m.retryConfig, func() error {
		_, err := m.client.Insert(
			ctx,
			m.collectionName,
			"",
			entity.NewColumnVarChar("chunk_id", chunkIDs),
			entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
			entity.NewColumnVarChar("capability", capabilities),
			entity.NewColumnVarChar("marketplace", marketplaces),
			entity.NewColumnVarChar("language", languages),
			entity.NewColumnInt64("timestamp", timestamps),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert chunk vectors: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunk vectors inserted", zap.Int("count", len(vectors)))

	return nil
}

func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]Match, error) {
	expr := ""
	for _, field := range []string{"capability", "marketplace", "language"} {
		if val, ok := filters[field]; ok && val != "" {
			if expr != "" {
				expr += " && "
			}
			expr += fmt.Sprintf(`%s == "%s"`, field, val)
		}
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := retry.DoWithResult(ctx, m.retryConfig, func() ([]client.SearchResult, error) {
		return m.client.Search(
			ctx,
			m.collectionName,
			[]string{},
			expr,
			[]string{"chunk_id"},
			[]entity.Vector{entity.FloatVector(queryEmbedding)},
			"embedding",
			entity.IP,
			topK,
			sp,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]Match, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			matches = append(matches, Match{
				ChunkID: chunkID.(string),
				Score:   sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("matches", len(matches)),
		zap.String("filters", expr),
	)

	return matches, nil
}
