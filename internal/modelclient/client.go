package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/capability"
	"github.com/lexybrain/backend/pkg/circuitbreaker"
	"github.com/lexybrain/backend/pkg/config"
	"github.com/lexybrain/backend/pkg/logger"
)

const bodyExcerptLen = 256

type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
}

// Result carries the validated output plus the opaque billing/telemetry
// numbers the invoker reports but does not interpret.
type Result struct {
	Output       json.RawMessage
	LatencyMS    int
	TokensIn     int
	TokensOut    int
	ModelVersion string
	RequestID    string
}

func New(cfg config.ModelConfig) *Client {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("model", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger.Info("Model client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
	)

	return &Client{
		api:         openai.NewClientWithConfig(oaCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		cb:          cb,
	}
}

// Generate runs one completion call and validates the response against the
// capability's output schema. Transport and schema failures surface as typed
// errors; retry policy belongs to the caller.
func (c *Client) Generate(ctx context.Context, cap capability.Capability, prompt string, maxTokens int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	var resp openai.CompletionResponse
	err := c.cb.Execute(ctx, func() error {
		var callErr error
		resp, callErr = c.api.CreateCompletion(ctx, openai.CompletionRequest{
			Model:       c.model,
			Prompt:      prompt,
			MaxTokens:   maxTokens,
			Temperature: c.temperature,
		})
		return callErr
	})
	if err != nil {
		return nil, asUnavailable(err)
	}

	latency := int(time.Since(start).Milliseconds())

	if len(resp.Choices) == 0 {
		return nil, &ValidationError{Capability: cap.String(), Detail: "empty completion"}
	}

	output := extractJSON(resp.Choices[0].Text)
	if output == nil {
		return nil, &ValidationError{Capability: cap.String(), Detail: "no JSON object in completion"}
	}

	if err := cap.ValidateOutput(output); err != nil {
		return nil, &ValidationError{Capability: cap.String(), Detail: err.Error()}
	}

	logger.Debug("Model completion generated",
		zap.String("capability", cap.String()),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("latency_ms", latency),
	)

	return &Result{
		Output:       output,
		LatencyMS:    latency,
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		ModelVersion: resp.Model,
		RequestID:    resp.ID,
	}, nil
}

func asUnavailable(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UnavailableError{
			StatusCode: apiErr.HTTPStatusCode,
			Excerpt:    excerpt(apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UnavailableError{
			StatusCode: reqErr.HTTPStatusCode,
			Excerpt:    excerpt(fmt.Sprintf("%v", reqErr.Err)),
		}
	}

	return &UnavailableError{Excerpt: excerpt(err.Error())}
}

// extractJSON pulls the outermost JSON object out of a completion, tolerating
// markdown code fences and prose around it.
func extractJSON(text string) json.RawMessage {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}

	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return candidate
}

func excerpt(s string) string {
	if len(s) > bodyExcerptLen {
		return s[:bodyExcerptLen]
	}
	return s
}
