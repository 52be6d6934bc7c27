// Package consensus sintetiza una probabilidad ponderada por liquidez y
// fiabilidad a partir de un cluster de mercados, y detecta spreads
// arbitrables entre venues.
package consensus

import (
	"math"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

const (
	// DefaultReliability se aplica a venues sin multiplier configurado.
	DefaultReliability = 0.7

	// Umbrales de confianza por agreement.
	highAgreement   = 0.7
	mediumAgreement = 0.4

	// DefaultArbSpread: un spread mayor a 5 puntos se señala como
	// posible arbitraje al caller.
	DefaultArbSpread = 0.05
)

// Config contiene la tabla de fiabilidad por venue y el umbral de arbitraje.
type Config struct {
	// Reliability es el multiplier por venue, rankeado por trustworthiness
	// histórica: exchanges regulados/líquidos cerca de 1.0, play-money menos.
	Reliability map[string]float64

	// ArbSpreadThreshold marca ArbSignal cuando el spread lo supera.
	ArbSpreadThreshold float64
}

// Engine calcula consensos. Es stateless: seguro para uso concurrente.
type Engine struct {
	cfg Config
}

// New crea un Engine de consenso.
func New(cfg Config) *Engine {
	if cfg.ArbSpreadThreshold <= 0 {
		cfg.ArbSpreadThreshold = DefaultArbSpread
	}
	return &Engine{cfg: cfg}
}

// Compute devuelve el consenso ponderado de un cluster.
//
// Peso por mercado = log(volumen + 1) × reliability del venue.
// Si el peso total es 0 (todos sin volumen), cae a la media sin ponderar.
func (e *Engine) Compute(cl domain.Cluster) domain.ConsensusResult {
	result := domain.ConsensusResult{}
	if cl.Size() == 0 {
		result.Probability = 0.5
		result.Confidence = domain.ConfidenceLow
		return result
	}

	weightedSum, totalWeight := 0.0, 0.0
	minP, maxP := 1.0, 0.0

	for _, m := range cl.Markets {
		w := math.Log(m.Volume+1) * e.reliability(m.Venue)
		result.Sources = append(result.Sources, domain.SourceContribution{
			Venue:       m.Venue,
			MarketID:    m.ID,
			Probability: m.YesPrice,
			Weight:      w,
		})
		weightedSum += m.YesPrice * w
		totalWeight += w
		minP = math.Min(minP, m.YesPrice)
		maxP = math.Max(maxP, m.YesPrice)
	}

	if totalWeight > 0 {
		result.Probability = weightedSum / totalWeight
	} else {
		// Fallback sin ponderar
		sum := 0.0
		for _, m := range cl.Markets {
			sum += m.YesPrice
		}
		result.Probability = sum / float64(cl.Size())
	}
	result.Probability = clamp01(result.Probability)

	// Agreement: una desviación media de 0.2 colapsa el acuerdo a cero.
	mad := 0.0
	for _, m := range cl.Markets {
		mad += math.Abs(m.YesPrice - result.Probability)
	}
	mad /= float64(cl.Size())
	result.Agreement = math.Max(0, 1-5*mad)

	result.Spread = maxP - minP
	result.ArbSignal = result.Spread > e.cfg.ArbSpreadThreshold
	result.Confidence = confidence(cl.Size(), result.Agreement)

	return result
}

// reliability devuelve el multiplier configurado para un venue.
func (e *Engine) reliability(venue string) float64 {
	if r, ok := e.cfg.Reliability[venue]; ok && r > 0 {
		return r
	}
	return DefaultReliability
}

func confidence(sources int, agreement float64) domain.ConfidenceTier {
	switch {
	case sources >= 3 && agreement > highAgreement:
		return domain.ConfidenceHigh
	case sources >= 2 && agreement > mediumAgreement:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
