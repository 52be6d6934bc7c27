// Package baserate estima priors históricos a partir de las predicciones
// ya resueltas: el rate base de una pregunta es la fracción de preguntas
// similares que acabaron resolviéndose YES.
package baserate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
	"github.com/alejandrodnm/oraculo/internal/similarity"
)

const (
	// defaultWindow acota cuánto historial pesa en el prior.
	defaultWindow = 180 * 24 * time.Hour
	// defaultMinSimilarity filtra preguntas que solo se parecen de lejos.
	defaultMinSimilarity = 0.35
)

// Service implementa ports.BaseRateService sobre el historial resuelto
// del PredictionStore, usando el motor de similitud para seleccionar
// los precedentes comparables.
type Service struct {
	store         ports.PredictionStore
	sim           *similarity.Engine
	window        time.Duration
	minSimilarity float64
}

// New crea el servicio. window <= 0 y minSimilarity <= 0 usan defaults.
func New(store ports.PredictionStore, sim *similarity.Engine, window time.Duration, minSimilarity float64) *Service {
	if window <= 0 {
		window = defaultWindow
	}
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}
	return &Service{
		store:         store,
		sim:           sim,
		window:        window,
		minSimilarity: minSimilarity,
	}
}

// BaseRate devuelve la fracción de precedentes similares resueltos YES.
// Sin precedentes comparables devuelve el rate neutral (0.5, muestra 0)
// para que el caller pueda degradar sin tratarlo como error.
func (s *Service) BaseRate(ctx context.Context, question string) (domain.BaseRate, error) {
	since := time.Now().Add(-s.window)
	resolved, err := s.store.ListResolvedSince(ctx, since)
	if err != nil {
		return domain.NeutralBaseRate(), fmt.Errorf("baserate.BaseRate: %w", err)
	}

	var total, yes int
	for _, p := range resolved {
		if p.Outcome == nil {
			continue
		}
		if s.sim.Score(question, p.Question) < s.minSimilarity {
			continue
		}
		total++
		if *p.Outcome {
			yes++
		}
	}

	if total == 0 {
		return domain.NeutralBaseRate(), nil
	}

	rate := domain.BaseRate{
		Rate:       float64(yes) / float64(total),
		SampleSize: total,
	}
	slog.Debug("historical base rate",
		"question", domain.TruncateQuestion(question, "", 50),
		"rate", fmt.Sprintf("%.2f", rate.Rate),
		"samples", rate.SampleSize,
	)
	return rate, nil
}
