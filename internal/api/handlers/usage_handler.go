package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/reporting"
	"github.com/lexybrain/backend/pkg/logger"
)

type UsageHandler struct {
	reporter *reporting.Reporter
}

func NewUsageHandler(reporter *reporting.Reporter) *UsageHandler {
	return &UsageHandler{reporter: reporter}
}

func (h *UsageHandler) HandleUsage(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.Get("X-User-ID")
	}
	if userID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "bad_request", "user_id is required")
	}

	report, err := h.reporter.Summarize(c.UserContext(), userID)
	if err != nil {
		logger.Error("Failed to build usage report", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "internal", "Failed to build usage report")
	}

	return c.JSON(report)
}
