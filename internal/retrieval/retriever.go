package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/pkg/logger"
)

const defaultLimit = 8

// Query is the input to one hybrid corpus search. A nil Embedding means the
// query text was empty and only lexical ranking applies.
type Query struct {
	Text        string
	Embedding   []float32
	Capability  string
	Marketplace string
	Language    string
	Limit       int
}

// Searcher is the fused lexical+vector search primitive. The fusion ranking
// lives behind this interface; the retriever treats it as a black box.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]models.CorpusChunk, error)
}

type Retriever struct {
	searcher Searcher
}

func New(searcher Searcher) *Retriever {
	return &Retriever{searcher: searcher}
}

// Retrieve returns ranked corpus chunks for the query. An empty result is a
// legitimate outcome here; refusing to generate on it is the caller's policy.
func (r *Retriever) Retrieve(ctx context.Context, queryText, capability, marketplace, language string, limit int) ([]models.CorpusChunk, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	q := Query{
		Text:        queryText,
		Embedding:   EmbedQuery(queryText),
		Capability:  capability,
		Marketplace: marketplace,
		Language:    language,
		Limit:       limit,
	}

	chunks, err := r.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	logger.Debug("Corpus retrieved",
		zap.String("capability", capability),
		zap.Int("limit", limit),
		zap.Int("chunks", len(chunks)),
		zap.Bool("vector_ranked", q.Embedding != nil),
	)

	return chunks, nil
}
