// Package learner recalcula la precisión histórica por categoría y genera
// las señales avoid/favor que ajustan al Decision Engine en el siguiente ciclo.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/oraculo/internal/application/engine"
	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// Config controla los umbrales del Learner.
type Config struct {
	// Window acota cuánto histórico resuelto se considera.
	Window time.Duration // default 30 días
	// MinSamples por categoría antes de actuar sobre ella (evita ruido).
	MinSamples int // default 5
	// PoorThreshold: accuracy (hit rate) por debajo → avoid-list.
	PoorThreshold float64 // default 0.40
	// GoodThreshold: accuracy por encima → favor-list.
	GoodThreshold float64 // default 0.70
	// HitScore: una predicción "acierta" si su Brier score es menor que esto
	// (0.25 = predijo el lado correcto).
	HitScore float64 // default 0.25
}

// DefaultConfig devuelve los umbrales por defecto del Learner.
func DefaultConfig() Config {
	return Config{
		Window:        30 * 24 * time.Hour,
		MinSamples:    5,
		PoorThreshold: 0.40,
		GoodThreshold: 0.70,
		HitScore:      0.25,
	}
}

// Validate falla rápido en umbrales imposibles.
func (c Config) Validate() error {
	if c.PoorThreshold < 0 || c.GoodThreshold > 1 || c.PoorThreshold >= c.GoodThreshold {
		return fmt.Errorf("learner.Config: thresholds poor=%.2f good=%.2f invalid", c.PoorThreshold, c.GoodThreshold)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("learner.Config: min samples must be >= 1")
	}
	return nil
}

// Report es el snapshot que el Learner produce para el Decision Engine.
type Report struct {
	RollingScore     float64 // media del Brier score (menor = mejor)
	SampleSize       int
	CategoryAccuracy map[domain.Category]float64
	CategorySamples  map[domain.Category]int
	Avoid            []domain.Category
	Favor            []domain.Category
}

// ToEngine convierte el report al formato que consume el Decision Engine.
func (r Report) ToEngine() engine.LearnerReport {
	return engine.LearnerReport{
		RollingScore: r.RollingScore,
		SampleSize:   r.SampleSize,
		Avoid:        r.Avoid,
		Favor:        r.Favor,
	}
}

// Learner lee el histórico resuelto y computa las señales de rendimiento.
type Learner struct {
	cfg   Config
	store ports.PredictionStore
}

// New crea un Learner. Falla si la configuración es inválida.
func New(cfg Config, store ports.PredictionStore) (*Learner, error) {
	if cfg.Window <= 0 {
		cfg.Window = 30 * 24 * time.Hour
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.PoorThreshold <= 0 {
		cfg.PoorThreshold = 0.40
	}
	if cfg.GoodThreshold <= 0 {
		cfg.GoodThreshold = 0.70
	}
	if cfg.HitScore <= 0 {
		cfg.HitScore = 0.25
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Learner{cfg: cfg, store: store}, nil
}

// Analyze computa el snapshot fresco de rendimiento. Las listas avoid/favor
// reemplazan por completo a las anteriores: una categoría que se recupera
// sale del avoid-list en el siguiente análisis, sin arrastre.
func (l *Learner) Analyze(ctx context.Context) (Report, error) {
	since := time.Now().UTC().Add(-l.cfg.Window)
	resolved, err := l.store.ListResolvedSince(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("learner.Analyze: list resolved: %w", err)
	}

	report := Report{
		CategoryAccuracy: make(map[domain.Category]float64),
		CategorySamples:  make(map[domain.Category]int),
	}

	totalScore := 0.0
	hits := make(map[domain.Category]int)
	for _, p := range resolved {
		if p.Score == nil {
			continue
		}
		report.SampleSize++
		totalScore += *p.Score
		report.CategorySamples[p.Category]++
		if *p.Score < l.cfg.HitScore {
			hits[p.Category]++
		}
	}
	if report.SampleSize == 0 {
		return report, nil
	}
	report.RollingScore = totalScore / float64(report.SampleSize)

	for cat, n := range report.CategorySamples {
		if n < l.cfg.MinSamples {
			continue // muestra insuficiente: no actuamos sobre ruido
		}
		accuracy := float64(hits[cat]) / float64(n)
		report.CategoryAccuracy[cat] = accuracy

		switch {
		case accuracy < l.cfg.PoorThreshold:
			report.Avoid = append(report.Avoid, cat)
		case accuracy > l.cfg.GoodThreshold:
			report.Favor = append(report.Favor, cat)
		}
	}
	sortCategories(report.Avoid)
	sortCategories(report.Favor)

	slog.Info("performance analysis complete",
		"samples", report.SampleSize,
		"rolling_score", fmt.Sprintf("%.3f", report.RollingScore),
		"avoid", report.Avoid,
		"favor", report.Favor,
	)
	return report, nil
}

func sortCategories(cats []domain.Category) {
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
}
