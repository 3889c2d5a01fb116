package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, c := range All() {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("fortune_telling")
	assert.ErrorIs(t, err, ErrUnknown)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestConfigQuotaKeys(t *testing.T) {
	assert.Equal(t, "briefs", MarketBrief.Config().QuotaKey)
	assert.Equal(t, "radar", Radar.Config().QuotaKey)
	assert.Equal(t, "ai_calls", AdInsight.Config().QuotaKey)
	assert.Equal(t, "ai_calls", RiskAlert.Config().QuotaKey)
	assert.Equal(t, "ai_calls", KeywordInsights.Config().QuotaKey)
}

func TestConfigComplete(t *testing.T) {
	for _, c := range All() {
		cfg := c.Config()
		assert.NotEmpty(t, cfg.OutputType, c.String())
		assert.NotEmpty(t, cfg.QuotaKey, c.String())
		assert.NotEmpty(t, cfg.PromptBlock, c.String())
		assert.Greater(t, cfg.TTLMinutes, 0, c.String())
		assert.Greater(t, cfg.MaxTokens, 0, c.String())
	}
}

func TestValidateOutputAccepts(t *testing.T) {
	cases := map[Capability]string{
		MarketBrief: `{
			"summary": "Demand for ceramic mugs is steady.",
			"opportunities": ["seasonal gift bundles"],
			"risks": ["rising clay prices"],
			"confidence": 0.8
		}`,
		Radar: `{
			"signals": [{"term": "ceramic mugs", "movement": "rising", "score": 0.7}]
		}`,
		AdInsight: `{
			"recommendations": [{"headline": "Warm drinks, warm homes", "rationale": "Winter demand spike."}]
		}`,
		RiskAlert: `{
			"alerts": [{"severity": "high", "title": "Trademark match", "detail": "Term matches a registered mark."}]
		}`,
		KeywordInsights: `{
			"insights": [{"term": "ceramic mugs", "assessment": "strong demand", "score": 0.75}],
			"summary": "Overall the niche looks healthy."
		}`,
	}

	for c, output := range cases {
		assert.NoError(t, c.ValidateOutput([]byte(output)), c.String())
	}
}

func TestValidateOutputRejects(t *testing.T) {
	// Missing required summary.
	err := MarketBrief.ValidateOutput([]byte(`{"opportunities": [], "risks": [], "confidence": 0.5}`))
	assert.Error(t, err)

	// Movement outside the enum.
	err = Radar.ValidateOutput([]byte(`{"signals": [{"term": "mugs", "movement": "sideways", "score": 0.5}]}`))
	assert.Error(t, err)

	// Recommendations must not be empty.
	err = AdInsight.ValidateOutput([]byte(`{"recommendations": []}`))
	assert.Error(t, err)

	// Severity outside the enum.
	err = RiskAlert.ValidateOutput([]byte(`{"alerts": [{"severity": "apocalyptic", "title": "x", "detail": "y"}]}`))
	assert.Error(t, err)

	// Confidence out of range.
	err = MarketBrief.ValidateOutput([]byte(`{"summary": "ok", "opportunities": [], "risks": [], "confidence": 1.5}`))
	assert.Error(t, err)
}
