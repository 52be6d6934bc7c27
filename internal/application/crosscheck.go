package application

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/oraculo/internal/application/cluster"
	"github.com/alejandrodnm/oraculo/internal/application/consensus"
	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// consensusSource es la segunda opinión independiente del Decision Engine:
// busca la misma pregunta en todos los venues, clusteriza y devuelve el
// consenso ponderado. Implementa engine.ProbabilitySource.
type consensusSource struct {
	venues    ports.VenueProvider
	clusterer *cluster.Clusterer
	consensus *consensus.Engine
}

// YesProbability devuelve el consenso multi-venue para el mercado dado.
// ok=false si no hay ningún mercado comparable aparte del propio: el
// cross-check se omite con gracia en vez de bloquear el commit.
func (s *consensusSource) YesProbability(ctx context.Context, m domain.Market) (float64, bool) {
	markets, err := s.venues.SearchMarkets(ctx, m.Question)
	if err != nil {
		slog.Debug("crosscheck search failed, skipping", "market", m.Key(), "err", err)
		return 0, false
	}

	clusters := s.clusterer.Partition(markets)
	best, found := s.clusterer.BestFor(m.Question, clusters)
	if !found {
		return 0, false
	}

	// Excluir el propio mercado: la opinión debe ser independiente.
	independent := best
	independent.Markets = nil
	for _, member := range best.Markets {
		if member.Key() == m.Key() {
			continue
		}
		independent.Markets = append(independent.Markets, member)
	}
	if len(independent.Markets) == 0 {
		return 0, false
	}

	result := s.consensus.Compute(independent)
	return result.Probability, true
}
