package hybrid

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/retrieval"
	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/internal/vector/milvus"
	"github.com/lexybrain/backend/pkg/logger"
)

// rrfK is the reciprocal-rank-fusion constant. 60 is the conventional value
// from the original RRF paper.
const rrfK = 60

// VectorIndex is the similarity side of the fusion. May be nil, in which case
// ranking is lexical-only.
type VectorIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]milvus.Match, error)
}

// Searcher fuses a lexical full-text rank over the relational corpus rows
// with a vector-similarity rank from the index, producing one combined score
// per chunk.
type Searcher struct {
	store *sqlite.Client
	index VectorIndex
}

func NewSearcher(store *sqlite.Client, index VectorIndex) *Searcher {
	return &Searcher{store: store, index: index}
}

func (s *Searcher) Search(ctx context.Context, q retrieval.Query) ([]models.CorpusChunk, error) {
	candidates, err := s.store.ListCorpusChunks(ctx, q.Capability, q.Marketplace, q.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	lexRanks := lexicalRanks(q.Text, candidates)
	vecRanks := s.vectorRanks(ctx, q, candidates)

	type scored struct {
		idx   int
		chunk models.CorpusChunk
	}

	var fused []scored
	for i, ch := range candidates {
		lr := lexRanks[ch.ID]
		vr := vecRanks[ch.ID]
		if lr == 0 && vr == 0 {
			continue
		}

		score := 0.0
		if lr > 0 {
			score += 1.0 / float64(rrfK+lr)
		}
		if vr > 0 {
			score += 1.0 / float64(rrfK+vr)
		}

		ch.LexicalRank = lr
		ch.VectorRank = vr
		ch.CombinedScore = score
		fused = append(fused, scored{idx: i, chunk: ch})
	}

	// Ties keep the store's own stable order.
	sort.SliceStable(fused, func(a, b int) bool {
		if fused[a].chunk.CombinedScore != fused[b].chunk.CombinedScore {
			return fused[a].chunk.CombinedScore > fused[b].chunk.CombinedScore
		}
		return fused[a].idx < fused[b].idx
	})

	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]models.CorpusChunk, len(fused))
	for i, f := range fused {
		results[i] = f.chunk
	}

	logger.Debug("Hybrid search completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// lexicalRanks scores candidates by distinct query-token overlap and assigns
// 1-based ranks. With no query tokens every candidate ranks in store order so
// that lexical-only requests still surface the corpus.
func lexicalRanks(queryText string, candidates []models.CorpusChunk) map[string]int {
	ranks := make(map[string]int, len(candidates))

	queryTokens := retrieval.Tokenize(queryText)
	if len(queryTokens) == 0 {
		for i, ch := range candidates {
			ranks[ch.ID] = i + 1
		}
		return ranks
	}

	type hit struct {
		idx     int
		id      string
		overlap int
	}

	var hits []hit
	for i, ch := range candidates {
		chunkTokens := make(map[string]bool)
		for _, t := range retrieval.Tokenize(ch.Chunk) {
			chunkTokens[t] = true
		}

		overlap := 0
		seen := make(map[string]bool, len(queryTokens))
		for _, qt := range queryTokens {
			if seen[qt] {
				continue
			}
			seen[qt] = true
			if chunkTokens[qt] {
				overlap++
			}
		}

		if overlap > 0 {
			hits = append(hits, hit{idx: i, id: ch.ID, overlap: overlap})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].overlap != hits[b].overlap {
			return hits[a].overlap > hits[b].overlap
		}
		return hits[a].idx < hits[b].idx
	})

	for rank, h := range hits {
		ranks[h.id] = rank + 1
	}
	return ranks
}

// vectorRanks queries the index and converts similarity order into 1-based
// ranks. Chunks without a stored embedding never appear here; an index error
// degrades to lexical-only with a logged warning.
func (s *Searcher) vectorRanks(ctx context.Context, q retrieval.Query, candidates []models.CorpusChunk) map[string]int {
	ranks := make(map[string]int)
	if s.index == nil || q.Embedding == nil {
		return ranks
	}

	embeddable := make(map[string]bool, len(candidates))
	for _, ch := range candidates {
		if ch.HasEmbedding {
			embeddable[ch.ID] = true
		}
	}
	if len(embeddable) == 0 {
		return ranks
	}

	filters := map[string]string{
		"capability":  q.Capability,
		"marketplace": q.Marketplace,
		"language":    q.Language,
	}

	topK := q.Limit * 4
	if topK < 20 {
		topK = 20
	}

	matches, err := s.index.Search(ctx, q.Embedding, topK, filters)
	if err != nil {
		logger.Warn("Vector search failed, falling back to lexical ranking", zap.Error(err))
		return ranks
	}

	rank := 0
	for _, m := range matches {
		if !embeddable[m.ChunkID] {
			continue
		}
		rank++
		ranks[m.ChunkID] = rank
	}
	return ranks
}
