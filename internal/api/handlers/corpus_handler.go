package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/ingestion"
	"github.com/lexybrain/backend/internal/metrics"
	"github.com/lexybrain/backend/internal/retrieval"
	"github.com/lexybrain/backend/internal/storage/models"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/internal/vector/milvus"
	"github.com/lexybrain/backend/pkg/logger"
)

const maxChunkBytes = 64 * 1024

type CorpusHandler struct {
	store     *sqlite.Client
	vectors   *milvus.Client
	processor *ingestion.Processor
}

// NewCorpusHandler wires corpus ingestion. The vector client may be nil, in
// which case chunks are stored for lexical ranking only.
func NewCorpusHandler(store *sqlite.Client, vectors *milvus.Client, processor *ingestion.Processor) *CorpusHandler {
	return &CorpusHandler{store: store, vectors: vectors, processor: processor}
}

type corpusRequest struct {
	ID          string `json:"id"`
	Scope       string `json:"scope"`
	SourceType  string `json:"source_type"`
	Capability  string `json:"capability"`
	Marketplace string `json:"marketplace"`
	Language    string `json:"language"`
	Chunk       string `json:"chunk"`
}

func (h *CorpusHandler) HandleIngest(c *fiber.Ctx) error {
	var req corpusRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	if req.Chunk == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "chunk is required")
	}
	if len(req.Chunk) > maxChunkBytes {
		return errorResponse(c, fiber.StatusRequestEntityTooLarge, "bad_request", "chunk exceeds maximum size")
	}
	if req.SourceType == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "source_type is required")
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	embedding := retrieval.EmbedQuery(req.Chunk)
	hasEmbedding := false

	if embedding != nil && h.vectors != nil {
		err := h.vectors.Insert(c.UserContext(), []milvus.ChunkVector{{
			ChunkID:     id,
			Embedding:   embedding,
			Capability:  req.Capability,
			Marketplace: req.Marketplace,
			Language:    req.Language,
		}})
		if err != nil {
			// Lexical ranking still works without the vector.
			logger.Warn("Vector index insert failed", zap.String("chunk_id", id), zap.Error(err))
		} else {
			hasEmbedding = true
		}
	}

	chunk := &models.CorpusChunk{
		ID:           id,
		Scope:        req.Scope,
		SourceType:   req.SourceType,
		Capability:   req.Capability,
		Marketplace:  req.Marketplace,
		Language:     req.Language,
		Chunk:        req.Chunk,
		HasEmbedding: hasEmbedding,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.InsertCorpusChunk(c.UserContext(), chunk); err != nil {
		logger.Error("Failed to store corpus chunk", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to store chunk")
	}

	metrics.CorpusChunksIngested.Inc()

	logger.Info("Corpus chunk ingested",
		zap.String("chunk_id", id),
		zap.String("source_type", req.SourceType),
		zap.Bool("has_embedding", hasEmbedding),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":            id,
		"has_embedding": hasEmbedding,
	})
}

type documentRequest struct {
	Scope       string `json:"scope"`
	SourceType  string `json:"source_type"`
	Capability  string `json:"capability"`
	Marketplace string `json:"marketplace"`
	Language    string `json:"language"`
	Text        string `json:"text"`
}

// HandleIngestDocument accepts a whole document and chunks it server-side.
func (h *CorpusHandler) HandleIngestDocument(c *fiber.Ctx) error {
	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	if req.Text == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "text is required")
	}
	if req.SourceType == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "source_type is required")
	}

	ids, err := h.processor.ProcessDocument(c.UserContext(), ingestion.Document{
		Scope:       req.Scope,
		SourceType:  req.SourceType,
		Capability:  req.Capability,
		Marketplace: req.Marketplace,
		Language:    req.Language,
		Text:        req.Text,
	})
	if err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to process document")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"chunk_ids": ids,
		"chunks":    len(ids),
	})
}
