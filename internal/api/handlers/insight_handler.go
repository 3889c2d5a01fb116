package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/capability"
	"github.com/lexybrain/backend/internal/orchestrator"
	"github.com/lexybrain/backend/internal/quota"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/pkg/logger"
)

type InsightHandler struct {
	orch  *orchestrator.Orchestrator
	store *sqlite.Client
}

func NewInsightHandler(orch *orchestrator.Orchestrator, store *sqlite.Client) *InsightHandler {
	return &InsightHandler{orch: orch, store: store}
}

type insightRequest struct {
	Capability  string   `json:"capability"`
	UserID      string   `json:"user_id"`
	KeywordIDs  []string `json:"keyword_ids"`
	Query       string   `json:"query"`
	Marketplace string   `json:"marketplace"`
	Language    string   `json:"language"`
	Scope       string   `json:"scope"`
	NicheTerms  []string `json:"niche_terms"`
	BudgetCents *int64   `json:"budget_cents"`
}

func (h *InsightHandler) HandleInsight(c *fiber.Ctx) error {
	var req insightRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	if req.Capability == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "capability is required")
	}
	if req.UserID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "user_id is required")
	}

	resp, err := h.orch.Run(c.UserContext(), orchestrator.Request{
		Capability:  req.Capability,
		UserID:      req.UserID,
		KeywordIDs:  req.KeywordIDs,
		Query:       req.Query,
		Marketplace: req.Marketplace,
		Language:    req.Language,
		Scope:       req.Scope,
		NicheTerms:  req.NicheTerms,
		BudgetCents: req.BudgetCents,
	})
	if err != nil {
		return insightError(c, err)
	}

	return c.JSON(resp)
}

func (h *InsightHandler) HandleHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "user_id is required")
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	snapshots, err := h.store.ListInsightSnapshots(c.UserContext(), userID, limit)
	if err != nil {
		logger.Error("Failed to list insight history", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to load history")
	}

	return c.JSON(fiber.Map{
		"history": snapshots,
	})
}

// insightError maps the orchestration failure taxonomy onto HTTP statuses.
// Anything unclassified is an internal error and deliberately opaque.
func insightError(c *fiber.Ctx, err error) error {
	if errors.Is(err, capability.ErrUnknown) {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	kind, ok := orchestrator.FailureKind(err)
	if !ok {
		logger.Error("Insight run failed", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to generate insight")
	}

	switch kind {
	case orchestrator.KindNoData:
		return errorResponse(c, fiber.StatusUnprocessableEntity, string(kind),
			"Not enough reliable data to generate this insight")
	case orchestrator.KindQuotaExceeded:
		var exceeded *quota.ExceededError
		payload := fiber.Map{
			"kind":    string(kind),
			"message": "Monthly quota exceeded for this capability",
		}
		if errors.As(err, &exceeded) {
			payload["quota_key"] = exceeded.Key
			payload["used"] = exceeded.Used
			payload["limit"] = exceeded.Limit
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": payload})
	case orchestrator.KindCostCapReached:
		return errorResponse(c, fiber.StatusTooManyRequests, string(kind),
			"Daily AI budget exhausted, try again tomorrow")
	case orchestrator.KindGenerationFailed:
		logger.Error("Generation failed", zap.Error(err))
		return errorResponse(c, fiber.StatusBadGateway, string(kind),
			"Insight generation failed, please retry")
	default:
		logger.Error("Insight run failed", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to generate insight")
	}
}

func errorResponse(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    kind,
			"message": message,
		},
	})
}
