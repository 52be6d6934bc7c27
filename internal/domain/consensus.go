package domain

// ConfidenceTier clasifica cuánto podemos fiarnos de un consenso.
type ConfidenceTier int

const (
	ConfidenceLow ConfidenceTier = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c ConfidenceTier) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// SourceContribution es el aporte de un mercado concreto al consenso.
type SourceContribution struct {
	Venue       string
	MarketID    string
	Probability float64
	Weight      float64
}

// ConsensusResult es la probabilidad sintetizada de un cluster.
// Es efímero: se calcula bajo demanda y nunca se persiste como tal.
type ConsensusResult struct {
	Probability float64 // siempre en [0,1]
	Sources     []SourceContribution
	Agreement   float64 // max(0, 1 - 5×MAD)
	Confidence  ConfidenceTier
	Spread      float64 // max - min entre fuentes
	// ArbSignal indica al caller que el spread supera el umbral de arbitraje.
	ArbSignal bool
}

// SourceCount devuelve el número de fuentes que aportaron al consenso.
func (r ConsensusResult) SourceCount() int {
	return len(r.Sources)
}
