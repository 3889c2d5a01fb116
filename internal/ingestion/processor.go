package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/metrics"
	"github.com/lexybrain/backend/internal/retrieval"
	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/internal/vector/milvus"
	"github.com/lexybrain/backend/pkg/logger"
)

// VectorStore is the embedding sink. Nil disables vector indexing and chunks
// land lexical-only.
type VectorStore interface {
	Insert(ctx context.Context, vectors []milvus.ChunkVector) error
}

// Processor splits whole documents into overlapping chunks and lands each
// chunk in the corpus store plus, when available, the vector index.
type Processor struct {
	store        *sqlite.Client
	vectors      VectorStore
	chunkSize    int
	chunkOverlap int
}

type Document struct {
	Scope       string
	SourceType  string
	Capability  string
	Marketplace string
	Language    string
	Text        string
}

func NewProcessor(store *sqlite.Client, vectors VectorStore) *Processor {
	return &Processor{
		store:        store,
		vectors:      vectors,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

// ProcessDocument chunks the document and stores every chunk. Returns the
// stored chunk IDs in document order.
func (p *Processor) ProcessDocument(ctx context.Context, doc Document) ([]string, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, fmt.Errorf("document has no content")
	}

	chunks := p.chunkText(text)
	logger.Info("Document chunked",
		zap.String("source_type", doc.SourceType),
		zap.Int("chunks", len(chunks)),
	)

	docID := uuid.New().String()
	now := time.Now().UTC()

	vectorChunks := make([]milvus.ChunkVector, 0, len(chunks))
	if p.vectors != nil {
		for i, chunkText := range chunks {
			embedding := retrieval.EmbedQuery(chunkText)
			if embedding == nil {
				continue
			}
			vectorChunks = append(vectorChunks, milvus.ChunkVector{
				ChunkID:     fmt.Sprintf("%s_chunk_%d", docID, i),
				Embedding:   embedding,
				Capability:  doc.Capability,
				Marketplace: doc.Marketplace,
				Language:    doc.Language,
			})
		}
	}

	// The index write goes first so rows only claim embeddings that landed.
	indexed := make(map[string]bool, len(vectorChunks))
	if len(vectorChunks) > 0 {
		if err := p.vectors.Insert(ctx, vectorChunks); err != nil {
			logger.Warn("Vector index insert failed for document, storing lexical-only",
				zap.String("doc_id", docID),
				zap.Error(err),
			)
		} else {
			for _, v := range vectorChunks {
				indexed[v.ChunkID] = true
			}
		}
	}

	ids := make([]string, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)

		row := &models.CorpusChunk{
			ID:           chunkID,
			Scope:        doc.Scope,
			SourceType:   doc.SourceType,
			Capability:   doc.Capability,
			Marketplace:  doc.Marketplace,
			Language:     doc.Language,
			Chunk:        chunkText,
			HasEmbedding: indexed[chunkID],
			CreatedAt:    now,
		}
		if err := p.store.InsertCorpusChunk(ctx, row); err != nil {
			return nil, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}

		ids = append(ids, chunkID)
		metrics.CorpusChunksIngested.Inc()
	}

	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(ids)),
		zap.Int("vectors", len(vectorChunks)),
	)

	return ids, nil
}

// chunkText splits on word boundaries into chunks of roughly chunkSize bytes
// with a tail overlap carried into the next chunk.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))

			overlapWords := strings.Fields(current.String())
			overlapStart := max(0, len(overlapWords)-p.chunkOverlap/10)
			current.Reset()
			current.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = current.Len()
		}

		current.WriteString(word + " ")
		currentSize += wordLen
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
