package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccuracyScore_PerfectPrediction(t *testing.T) {
	assert.Equal(t, 0.0, AccuracyScore(1.0, true))
	assert.Equal(t, 0.0, AccuracyScore(0.0, false))
}

func TestAccuracyScore_MaximallyWrong(t *testing.T) {
	assert.Equal(t, 1.0, AccuracyScore(1.0, false))
	assert.Equal(t, 1.0, AccuracyScore(0.0, true))
}

func TestAccuracyScore_ConfidentAndRight(t *testing.T) {
	// 80% YES y ocurre: (0.8 - 1)² = 0.04
	assert.InDelta(t, 0.04, AccuracyScore(0.8, true), 1e-9)
}

func TestAccuracyScore_ConfidentAndWrong(t *testing.T) {
	// 80% YES y no ocurre: (0.8 - 0)² = 0.64
	assert.InDelta(t, 0.64, AccuracyScore(0.8, false), 1e-9)
}

func TestAccuracyScore_Uncertain(t *testing.T) {
	// 50% da el mismo error pase lo que pase.
	assert.InDelta(t, 0.25, AccuracyScore(0.5, true), 1e-9)
	assert.InDelta(t, 0.25, AccuracyScore(0.5, false), 1e-9)
}

func TestYesProbability_NormalizesDirection(t *testing.T) {
	yes := Prediction{Direction: DirectionYes, Probability: 0.8}
	no := Prediction{Direction: DirectionNo, Probability: 0.8}

	assert.InDelta(t, 0.8, yes.YesProbability(), 1e-9)
	// "80% NO" equivale a "20% YES".
	assert.InDelta(t, 0.2, no.YesProbability(), 1e-9)
}

func TestYesProbability_EquivalentPredictionsScoreEqually(t *testing.T) {
	yes := Prediction{Direction: DirectionYes, Probability: 0.2}
	no := Prediction{Direction: DirectionNo, Probability: 0.8}

	assert.InDelta(t,
		AccuracyScore(yes.YesProbability(), true),
		AccuracyScore(no.YesProbability(), true),
		1e-9,
	)
}

func TestMarketKey(t *testing.T) {
	linked := Prediction{MarketVenue: "polymarket", MarketID: "abc"}
	assert.Equal(t, "polymarket:abc", linked.MarketKey())

	unlinked := Prediction{}
	assert.Equal(t, "", unlinked.MarketKey())
}

func TestInferCategory(t *testing.T) {
	cases := map[string]Category{
		"Will Bitcoin reach $100k by 2025?":          CategoryCrypto,
		"Who wins the 2024 presidential election?":   CategoryPolitics,
		"Will the Fed cut interest rates in March?":  CategoryEconomics,
		"Super Bowl champion 2025?":                  CategorySports,
		"Will OpenAI release GPT-5 this year?":       CategoryTech,
		"Hurricane landfall in Florida this season?": CategoryClimate,
		"Ceasefire agreement signed by June?":        CategoryGeopolitics,
		"Will it rain in Madrid tomorrow?":           CategoryGeneral,
	}
	for title, want := range cases {
		assert.Equal(t, want, InferCategory(title), "title: %s", title)
	}
}

func TestInferCategory_FirstMatchWins(t *testing.T) {
	// "bitcoin" (crypto) aparece antes que "election" (politics) en la
	// lista de matchers: crypto gana aunque ambos matcheen.
	assert.Equal(t, CategoryCrypto, InferCategory("Will Bitcoin moon after the election?"))
}

func TestTruncateQuestion(t *testing.T) {
	assert.Equal(t, "short", TruncateQuestion("short", "venue:1", 50))
	assert.Equal(t, "venue:1", TruncateQuestion("", "venue:1", 50))

	long := "This is a very long market question that keeps going and going"
	got := TruncateQuestion(long, "", 20)
	assert.Len(t, got, 20)
	assert.Contains(t, got, "...")
}
