package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/quota"
	"github.com/lexybrain/backend/pkg/logger"
)

type QuotaHandler struct {
	ledger *quota.Ledger
}

func NewQuotaHandler(ledger *quota.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

// HandleQuota reports the caller's consumption for every tracked quota key in
// the current period. Reading never consumes.
func (h *QuotaHandler) HandleQuota(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.Get("X-User-ID")
	}
	if userID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "user_id is required")
	}

	statuses, err := h.ledger.StatusAll(c.UserContext(), userID)
	if err != nil {
		logger.Error("Failed to load quota status", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to load quota status")
	}

	return c.JSON(fiber.Map{
		"user_id":      userID,
		"plan":         h.ledger.PlanCode(c.UserContext(), userID),
		"period_start": quota.PeriodStart(time.Now()).Format("2006-01-02"),
		"quotas":       statuses,
	})
}
