package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/orchestrator"
	"github.com/lexybrain/backend/pkg/logger"
)

const relayRunTimeout = 60 * time.Second

// RelayHandler serves the browser-extension channel. The extension holds one
// long-lived socket and sends insight requests as frames; each frame gets a
// status frame immediately and a result or error frame when the run finishes.
type RelayHandler struct {
	orch *orchestrator.Orchestrator
}

func NewRelayHandler(orch *orchestrator.Orchestrator) *RelayHandler {
	return &RelayHandler{orch: orch}
}

type relayFrame struct {
	Type        string   `json:"type"`
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

func (h *RelayHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Extension relay connected")

	defer func() {
		c.Close()
		logger.Info("Extension relay disconnected")
	}()

	for {
		var frame relayFrame
		if err := c.ReadJSON(&frame); err != nil {
			logger.Debug("Relay read ended", zap.Error(err))
			break
		}

		if frame.Type != "insight" {
			continue
		}

		if frame.Capability == "" || frame.UserID == "" {
			h.sendError(c, "bad_request", "capability and user_id are required")
			continue
		}

		h.sendStatus(c, "Generating insight...")

		ctx, cancel := context.WithTimeout(context.Background(), relayRunTimeout)
		resp, err := h.orch.Run(ctx, orchestrator.Request{
			Capability:  frame.Capability,
			UserID:      frame.UserID,
			KeywordIDs:  frame.KeywordIDs,
			Query:       frame.Query,
			Marketplace: frame.Marketplace,
			Language:    frame.Language,
			Scope:       frame.Scope,
			NicheTerms:  frame.NicheTerms,
			BudgetCents: frame.BudgetCents,
		})
		cancel()

		if err != nil {
			h.sendRunError(c, err)
			continue
		}

		msg := map[string]interface{}{
			"type":        "result",
			"output_type": resp.OutputType,
			"insight":     resp.Insight,
			"references":  resp.References,
			"cache_hit":   resp.CacheHit,
		}
		if resp.SnapshotID != "" {
			msg["snapshot_id"] = resp.SnapshotID
		}
		if err := c.WriteJSON(msg); err != nil {
			logger.Warn("Relay write failed", zap.Error(err))
			break
		}
	}
}

func (h *RelayHandler) sendStatus(c *websocket.Conn, content string) {
	c.WriteJSON(map[string]interface{}{
		"type":    "status",
		"content": content,
	})
}

func (h *RelayHandler) sendRunError(c *websocket.Conn, err error) {
	kind, ok := orchestrator.FailureKind(err)
	if !ok {
		logger.Error("Relay insight run failed", zap.Error(err))
		h.sendError(c, "internal", "Failed to generate insight")
		return
	}

	var message string
	switch kind {
	case orchestrator.KindNoData:
		message = "Not enough reliable data to generate this insight"
	case orchestrator.KindQuotaExceeded:
		message = "Monthly quota exceeded for this capability"
	case orchestrator.KindCostCapReached:
		message = "Daily AI budget exhausted, try again tomorrow"
	default:
		message = "Insight generation failed, please retry"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		message = "Insight generation timed out"
	}

	h.sendError(c, string(kind), message)
}

func (h *RelayHandler) sendError(c *websocket.Conn, kind, message string) {
	c.WriteJSON(map[string]interface{}{
		"type":    "error",
		"kind":    kind,
		"message": message,
	})
}
