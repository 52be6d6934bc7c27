package consensus

import (
	"sort"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// Detector encuentra pares arbitrables dentro de clusters ya formados.
// El clustering garantiza mismo tópico: nunca se compara cross-topic.
type Detector struct {
	minSpread float64
}

// NewDetector crea un Detector. minSpread <= 0 usa DefaultArbSpread.
func NewDetector(minSpread float64) *Detector {
	if minSpread <= 0 {
		minSpread = DefaultArbSpread
	}
	return &Detector{minSpread: minSpread}
}

// Detect devuelve todos los pares cross-venue cuyas probabilidades difieren
// al menos minSpread, ordenados por spread descendente. Nunca empareja
// mercados del mismo venue.
func (d *Detector) Detect(clusters []domain.Cluster) []domain.ArbitragePair {
	var pairs []domain.ArbitragePair
	for _, cl := range clusters {
		pairs = append(pairs, d.detectIn(cl)...)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Spread > pairs[j].Spread
	})
	return pairs
}

func (d *Detector) detectIn(cl domain.Cluster) []domain.ArbitragePair {
	var pairs []domain.ArbitragePair
	for i := 0; i < len(cl.Markets); i++ {
		for j := i + 1; j < len(cl.Markets); j++ {
			a, b := cl.Markets[i], cl.Markets[j]
			if a.Venue == b.Venue {
				continue
			}
			diff := a.YesPrice - b.YesPrice
			if diff < 0 {
				diff = -diff
			}
			if diff < d.minSpread {
				continue
			}
			pairs = append(pairs, domain.NewArbitragePair(cl.Topic, a, b))
		}
	}
	return pairs
}
