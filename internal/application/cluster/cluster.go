// Package cluster agrupa mercados de distintos venues que representan la
// misma pregunta, usando el engine de similitud sobre los títulos.
package cluster

import (
	"log/slog"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/similarity"
)

// DefaultThreshold es el umbral mínimo de similitud para pertenecer a un cluster.
const DefaultThreshold = 0.35

// Clusterer particiona listas de mercados en clusters por similitud de título.
type Clusterer struct {
	sim       *similarity.Engine
	threshold float64
}

// New crea un Clusterer. threshold <= 0 usa DefaultThreshold.
func New(sim *similarity.Engine, threshold float64) *Clusterer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Clusterer{sim: sim, threshold: threshold}
}

// Threshold devuelve el umbral de similitud configurado.
func (c *Clusterer) Threshold() float64 {
	return c.threshold
}

// Partition agrupa los mercados en clusters con un greedy de una pasada:
// el siguiente mercado sin asignar es seed, y absorbe a todos los restantes
// cuya similitud con él supere el umbral. O(n²), aceptable porque n está
// acotado por el batch del scan (decenas).
func (c *Clusterer) Partition(markets []domain.Market) []domain.Cluster {
	assigned := make([]bool, len(markets))
	var clusters []domain.Cluster

	for i, seed := range markets {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		cl := domain.NewCluster(seed)

		for j := i + 1; j < len(markets); j++ {
			if assigned[j] {
				continue
			}
			score := c.sim.Score(seed.Question, markets[j].Question)
			if score < c.threshold {
				continue
			}
			assigned[j] = true
			cl = absorb(cl, markets[j])
		}
		clusters = append(clusters, cl)
	}

	slog.Debug("clustering complete",
		"markets", len(markets),
		"clusters", len(clusters),
		"threshold", c.threshold,
	)
	return clusters
}

// BestFor devuelve el cluster más relevante para una consulta: entre los
// clusters cuyo seed supera el umbral, gana el de mayor QualityScore
// (venues distintos × log(1 + volumen)).
func (c *Clusterer) BestFor(query string, clusters []domain.Cluster) (domain.Cluster, bool) {
	var best domain.Cluster
	found := false
	for _, cl := range clusters {
		if c.sim.Score(query, cl.Seed.Question) < c.threshold {
			continue
		}
		if !found || cl.QualityScore() > best.QualityScore() {
			best = cl
			found = true
		}
	}
	return best, found
}

// absorb añade un mercado al cluster. Si ya existe un miembro del mismo
// venue, son listings duplicados de la misma pregunta: se queda el de
// mayor volumen.
func absorb(cl domain.Cluster, m domain.Market) domain.Cluster {
	for i, existing := range cl.Markets {
		if existing.Venue != m.Venue {
			continue
		}
		if m.Volume > existing.Volume {
			cl.Markets[i] = m
		}
		return cl
	}
	cl.Markets = append(cl.Markets, m)
	return cl
}
