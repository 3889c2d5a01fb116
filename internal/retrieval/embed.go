package retrieval

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"
)

// EmbeddingDim is the fixed dimensionality of the deterministic query
// projection. It must match the corpus collection's vector dimension.
const EmbeddingDim = 256

// Tokenize lowercases and splits text into word tokens, dropping punctuation.
// Falls back to whitespace splitting if the tokenizer fails.
func Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return fallbackTokens(text)
	}

	var tokens []string
	for _, tok := range doc.Tokens() {
		t := strings.ToLower(tok.Text)
		if isWord(t) {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// EmbedQuery projects text onto a fixed-dimension vector via hashed token
// bucketing. The projection is reproducible: the same text always yields the
// same vector. Returns nil for empty text so lexical-only ranking applies.
func EmbedQuery(text string) []float32 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	vec := make([]float32, EmbeddingDim)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		bucket := int(sum % EmbeddingDim)
		// The next hash bit decides the sign, spreading collisions.
		if (sum>>8)&1 == 0 {
			vec[bucket] += 1
		} else {
			vec[bucket] -= 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec
}

func isWord(t string) bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func fallbackTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
