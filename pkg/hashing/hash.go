package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
)

// InsightInput holds the fields that identify one logical insight request.
// Two requests naming the same keywords and market in any order must produce
// the same hash, so term slices are normalized before digesting.
type InsightInput struct {
	Capability   string   `json:"capability"`
	Marketplace  string   `json:"marketplace"`
	NicheTerms   []string `json:"niche_terms"`
	BudgetCents  *int64   `json:"budget_cents,omitempty"`
	KeywordTerms []string `json:"keyword_terms"`
}

// InsightHash returns the sha256 hex digest of the RFC 8785 canonical JSON
// form of the normalized input.
func InsightHash(in InsightInput) (string, error) {
	normalized := InsightInput{
		Capability:   in.Capability,
		Marketplace:  strings.ToLower(in.Marketplace),
		NicheTerms:   normalizeTerms(in.NicheTerms),
		BudgetCents:  in.BudgetCents,
		KeywordTerms: normalizeTerms(in.KeywordTerms),
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal hash input: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize hash input: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
