package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsightHashOrderIndependent(t *testing.T) {
	budget := int64(5000)

	a, err := InsightHash(InsightInput{
		Capability:   "market_brief",
		Marketplace:  "Etsy",
		NicheTerms:   []string{"ceramic mugs", "Pottery"},
		BudgetCents:  &budget,
		KeywordTerms: []string{"handmade mug", "stoneware"},
	})
	require.NoError(t, err)

	b, err := InsightHash(InsightInput{
		Capability:   "market_brief",
		Marketplace:  "etsy",
		NicheTerms:   []string{"pottery", "Ceramic Mugs"},
		BudgetCents:  &budget,
		KeywordTerms: []string{"Stoneware", "handmade mug"},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestInsightHashDedupesTerms(t *testing.T) {
	a, err := InsightHash(InsightInput{
		Capability:   "radar",
		Marketplace:  "etsy",
		KeywordTerms: []string{"candle", "candle", " candle "},
	})
	require.NoError(t, err)

	b, err := InsightHash(InsightInput{
		Capability:   "radar",
		Marketplace:  "etsy",
		KeywordTerms: []string{"candle"},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestInsightHashDistinguishesInputs(t *testing.T) {
	base := InsightInput{
		Capability:   "market_brief",
		Marketplace:  "etsy",
		KeywordTerms: []string{"candle"},
	}

	baseHash, err := InsightHash(base)
	require.NoError(t, err)

	otherCap := base
	otherCap.Capability = "radar"
	capHash, err := InsightHash(otherCap)
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, capHash)

	otherMarket := base
	otherMarket.Marketplace = "amazon_handmade"
	marketHash, err := InsightHash(otherMarket)
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, marketHash)

	budget := int64(1000)
	withBudget := base
	withBudget.BudgetCents = &budget
	budgetHash, err := InsightHash(withBudget)
	require.NoError(t, err)
	assert.NotEqual(t, baseHash, budgetHash)
}

func TestInsightHashStable(t *testing.T) {
	in := InsightInput{
		Capability:   "ad_insight",
		Marketplace:  "etsy",
		NicheTerms:   []string{"jewelry"},
		KeywordTerms: []string{"silver ring", "gold necklace"},
	}

	first, err := InsightHash(in)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := InsightHash(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
