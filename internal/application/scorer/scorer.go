// Package scorer puntúa el atractivo de un mercado individual comparando
// su precio contra un base rate externo de preguntas similares resueltas.
package scorer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// Config contiene los umbrales de scoring.
type Config struct {
	// MinDivergence clasifica como mispriced si |precio - base rate| >= esto.
	MinDivergence float64 // default 0.15
	// HighVolume activa el bonus de volumen.
	HighVolume float64 // default 10_000
	// ClosingWindow activa el bonus de cierre inminente.
	ClosingWindow time.Duration // default 48h
	// MinScore es el piso de aceptación del score compuesto.
	MinScore float64 // default 60
	// MinVolume descarta mercados con volumen por debajo del mínimo absoluto.
	MinVolume float64 // default 1_000
	// AllowedCategories restringe por categoría si no está vacía.
	AllowedCategories []domain.Category
	// LookupConcurrency acota las consultas paralelas de base rate.
	LookupConcurrency int // default 4
	// LookupDelay es la pausa entre consultas para respetar rate limits.
	LookupDelay time.Duration
}

// DefaultConfig devuelve los umbrales por defecto.
func DefaultConfig() Config {
	return Config{
		MinDivergence:     0.15,
		HighVolume:        10_000,
		ClosingWindow:     48 * time.Hour,
		MinScore:          60,
		MinVolume:         1_000,
		LookupConcurrency: 4,
		LookupDelay:       100 * time.Millisecond,
	}
}

// Valores del score compuesto. El score arranca en una base neutral y cada
// señal suma o resta; el piso de aceptación queda por encima de la base
// para que solo mercados con señal real pasen.
const (
	baseScore        = 50.0
	highVolumeBonus  = 10.0
	closingSoonBonus = 5.0
	highConfBonus    = 10.0
	lowConfPenalty   = 15.0

	highConfDivergence = 0.25
	highConfVolume     = 5_000
	lowConfDivergence  = 0.10
	lowConfVolume      = 2_000
)

// Scorer evalúa mercados contra el servicio de base rates.
type Scorer struct {
	cfg   Config
	rates ports.BaseRateService
}

// New crea un Scorer.
func New(cfg Config, rates ports.BaseRateService) *Scorer {
	if cfg.MinDivergence <= 0 {
		cfg.MinDivergence = 0.15
	}
	if cfg.HighVolume <= 0 {
		cfg.HighVolume = 10_000
	}
	if cfg.ClosingWindow <= 0 {
		cfg.ClosingWindow = 48 * time.Hour
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 60
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 1_000
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = 4
	}
	return &Scorer{cfg: cfg, rates: rates}
}

// ScoreMarket puntúa un mercado. Devuelve ok=false si no supera el piso de
// aceptación, el volumen mínimo o el allow-list de categorías.
func (s *Scorer) ScoreMarket(ctx context.Context, m domain.Market) (domain.Opportunity, bool) {
	rate := s.lookupBaseRate(ctx, m.Question)

	opp := domain.Opportunity{
		Market:     m,
		ScannedAt:  time.Now().UTC(),
		BaseRate:   rate.Rate,
		SampleSize: rate.SampleSize,
		Category:   domain.InferCategory(m.Question),
	}

	score := baseScore

	// 1. Divergencia contra el base rate: la señal principal.
	opp.Divergence = abs(m.YesPrice - rate.Rate)
	opp.Edge = opp.Divergence
	if opp.Divergence >= s.cfg.MinDivergence {
		opp.Label = domain.LabelMispriced
		opp.SuggestedProb = rate.Rate
		if rate.Rate > m.YesPrice {
			opp.Direction = domain.DirectionYes
		} else {
			opp.Direction = domain.DirectionNo
			opp.SuggestedProb = 1 - rate.Rate
		}
		score += opp.Divergence * 100
	}

	// 2. Volumen alto: señal de liquidez real.
	if m.Volume > s.cfg.HighVolume {
		score += highVolumeBonus
		if opp.Label == domain.LabelNone {
			opp.Label = domain.LabelHighVolume
		}
	}

	// 3. Cierre inminente: menor prioridad que mispriced/high_volume.
	if m.ClosesWithin(s.cfg.ClosingWindow) {
		score += closingSoonBonus
		if opp.Label == domain.LabelNone {
			opp.Label = domain.LabelClosingSoon
		}
	}

	// 4. Confianza por combinación divergencia × volumen.
	switch {
	case opp.Divergence > highConfDivergence && m.Volume > highConfVolume:
		opp.Confidence = domain.OppConfidenceHigh
		score += highConfBonus
	case opp.Divergence < lowConfDivergence || m.Volume < lowConfVolume:
		opp.Confidence = domain.OppConfidenceLow
		score -= lowConfPenalty
	default:
		opp.Confidence = domain.OppConfidenceMedium
	}

	opp.Score = score

	// 5. Rechazos finales: piso de score, volumen mínimo, allow-list.
	if score < s.cfg.MinScore || m.Volume < s.cfg.MinVolume {
		return domain.Opportunity{}, false
	}
	if !s.categoryAllowed(opp.Category) {
		return domain.Opportunity{}, false
	}
	return opp, true
}

// ScoreAll puntúa un batch en paralelo con concurrencia acotada para
// respetar los rate limits del servicio de base rates. Devuelve solo las
// oportunidades aceptadas, ordenadas por score descendente.
func (s *Scorer) ScoreAll(ctx context.Context, markets []domain.Market) []domain.Opportunity {
	var (
		mu   sync.Mutex
		opps []domain.Opportunity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LookupConcurrency)

	for _, m := range markets {
		m := m
		g.Go(func() error {
			if s.cfg.LookupDelay > 0 {
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(s.cfg.LookupDelay):
				}
			}
			opp, ok := s.ScoreMarket(gctx, m)
			if !ok {
				return nil
			}
			mu.Lock()
			opps = append(opps, opp)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // los workers nunca devuelven error: los fallos degradan a rate neutral

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].Score > opps[j].Score
	})
	return opps
}

// lookupBaseRate consulta el base rate degradando a neutral en caso de error.
func (s *Scorer) lookupBaseRate(ctx context.Context, question string) domain.BaseRate {
	rate, err := s.rates.BaseRate(ctx, question)
	if err != nil {
		slog.Debug("base rate lookup failed, using neutral",
			"question", domain.TruncateQuestion(question, "", 60),
			"err", err,
		)
		return domain.NeutralBaseRate()
	}
	if rate.SampleSize <= 0 {
		return domain.NeutralBaseRate()
	}
	return rate
}

func (s *Scorer) categoryAllowed(c domain.Category) bool {
	if len(s.cfg.AllowedCategories) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedCategories {
		if c == allowed {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
