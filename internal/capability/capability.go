package capability

import (
	"errors"
	"fmt"
)

// Capability is a closed enumeration of insight kinds. Adding one is a
// compile-time change: Config and schemaJSON switch exhaustively over it.
type Capability int

const (
	MarketBrief Capability = iota
	Radar
	AdInsight
	RiskAlert
	KeywordInsights
)

var ErrUnknown = errors.New("unknown capability")

func All() []Capability {
	return []Capability{MarketBrief, Radar, AdInsight, RiskAlert, KeywordInsights}
}

func Parse(s string) (Capability, error) {
	switch s {
	case "market_brief":
		return MarketBrief, nil
	case "radar":
		return Radar, nil
	case "ad_insight":
		return AdInsight, nil
	case "risk":
		return RiskAlert, nil
	case "keyword_insights":
		return KeywordInsights, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
}

func (c Capability) String() string {
	switch c {
	case MarketBrief:
		return "market_brief"
	case Radar:
		return "radar"
	case AdInsight:
		return "ad_insight"
	case RiskAlert:
		return "risk"
	case KeywordInsights:
		return "keyword_insights"
	default:
		return "unknown"
	}
}

// Config carries the per-capability generation parameters.
type Config struct {
	OutputType  string
	QuotaKey    string
	PromptBlock string
	TTLMinutes  int
	MaxTokens   int
}

func (c Capability) Config() Config {
	switch c {
	case MarketBrief:
		return Config{
			OutputType: "market_brief",
			QuotaKey:   "briefs",
			TTLMinutes: 24 * 60,
			MaxTokens:  1600,
			PromptBlock: `Produce a market brief for the seller's niche. Summarize demand and
competition, name concrete opportunities and risks, and state a confidence
between 0 and 1 reflecting how well the data supports the brief.`,
		}
	case Radar:
		return Config{
			OutputType: "radar",
			QuotaKey:   "radar",
			TTLMinutes: 6 * 60,
			MaxTokens:  1200,
			PromptBlock: `Scan the tracked terms for movement. For each signal report the term,
whether it is rising, falling or stable, and a score between 0 and 1.`,
		}
	case AdInsight:
		return Config{
			OutputType: "ad_insight",
			QuotaKey:   "ai_calls",
			TTLMinutes: 12 * 60,
			MaxTokens:  1400,
			PromptBlock: `Recommend advertising angles for the given keywords. Each recommendation
needs a headline and a rationale grounded in the provided metrics. If a
budget is given, add a budget note.`,
		}
	case RiskAlert:
		return Config{
			OutputType: "risk",
			QuotaKey:   "ai_calls",
			TTLMinutes: 3 * 60,
			MaxTokens:  1200,
			PromptBlock: `Review the risk rules and recent risk events. Emit alerts with a severity,
a short title and an actionable detail. Only raise alerts the provided
events actually support.`,
		}
	case KeywordInsights:
		return Config{
			OutputType: "keyword_insights",
			QuotaKey:   "ai_calls",
			TTLMinutes: 12 * 60,
			MaxTokens:  1600,
			PromptBlock: `Assess each tracked keyword. For every term give a concise assessment and
an overall score between 0 and 1, then close with a one-paragraph summary.`,
		}
	default:
		return Config{OutputType: "unknown", QuotaKey: "ai_calls", TTLMinutes: 60, MaxTokens: 1024}
	}
}
