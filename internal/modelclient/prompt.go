package modelclient

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lexybrain/backend/internal/assembler"
	"github.com/lexybrain/backend/internal/capability"
	"github.com/lexybrain/backend/internal/storage/models"
)

const systemBlock = `You are LexyBrain, a marketplace analytics assistant for online sellers.

Your answers must:
1. Rely ONLY on the metrics, predictions, risk data and reference excerpts provided below
2. Never invent numbers, terms or trends that are not in the data
3. Return a single JSON object matching the requested output format, nothing else
4. Acknowledge low confidence when the data is thin`

const maxCorpusExcerpts = 6
const maxExcerptLen = 500

// BuildPrompt merges the global instruction block, the capability block and
// the rendered context bundle into one completion prompt.
func BuildPrompt(cap capability.Capability, bundle *assembler.Bundle, chunks []models.CorpusChunk, query string) string {
	var b strings.Builder

	b.WriteString(systemBlock)
	b.WriteString("\n\n")
	b.WriteString(cap.Config().PromptBlock)
	b.WriteString("\n\n")

	if bundle.Marketplace != "" {
		fmt.Fprintf(&b, "Marketplace: %s\n", bundle.Marketplace)
	}
	if query != "" {
		fmt.Fprintf(&b, "Seller question: %s\n", query)
	}

	if len(bundle.Scores) > 0 {
		b.WriteString("\nTracked keywords:\n")
		for _, s := range bundle.Scores {
			fmt.Fprintf(&b, "- %s (demand %.2f, competition %.2f, trend %.2f, engagement %.2f, opportunity %.2f)\n",
				s.Term, s.Demand, s.Competition, s.Trend, s.Engagement, s.Opportunity)
		}
	}

	writeMetrics(&b, "Recent daily metrics", bundle.Daily, 10)
	writeMetrics(&b, "Recent weekly metrics", bundle.Weekly, 8)

	if len(bundle.Predictions) > 0 {
		b.WriteString("\nForecasts:\n")
		for i, p := range bundle.Predictions {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "- keyword %s, horizon %s: %s\n", p.KeywordID, p.Horizon, formatMetricMap(p.Metrics))
		}
	}

	if len(bundle.RiskEvents) > 0 {
		b.WriteString("\nRecent risk events:\n")
		for i, e := range bundle.RiskEvents {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", e.RuleID, e.Detail)
		}
	}

	if len(chunks) > 0 {
		b.WriteString("\nReference excerpts:\n")
		for i, ch := range chunks {
			if i >= maxCorpusExcerpts {
				break
			}
			text := ch.Chunk
			if len(text) > maxExcerptLen {
				text = text[:maxExcerptLen]
			}
			fmt.Fprintf(&b, "\n[ref %d | %s]\n%s\n", i+1, ch.SourceType, text)
		}
	}

	b.WriteString("\nRespond with the JSON object only.")

	return b.String()
}

func writeMetrics(b *strings.Builder, label string, snaps []models.MetricSnapshot, max int) {
	if len(snaps) == 0 {
		return
	}

	fmt.Fprintf(b, "\n%s:\n", label)
	for i, s := range snaps {
		if i >= max {
			break
		}
		fmt.Fprintf(b, "- %s %s: %s\n", s.KeywordID, s.ObservedAt.Format("2006-01-02"), formatMetricMap(s.Metrics))
	}
}

func formatMetricMap(m map[string]float64) string {
	if len(m) == 0 {
		return "no data"
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(m))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
