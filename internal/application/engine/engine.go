// Package engine implementa el Decision Engine: una cadena ordenada de
// gates de riesgo que cada oportunidad debe superar antes de convertirse
// en una predicción persistida y vigilada.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// Config contiene los umbrales de las gates.
type Config struct {
	MaxDaily       int           // techo de predicciones por día, default 10
	MaxPerCategory int           // techo por categoría por día, default 3
	Cooldown       time.Duration // espera mínima entre commits, default 5m
	MinScore       float64       // piso de score, default 60
	MinConfidence  domain.OppConfidence
	MinEdge        float64 // edge mínimo esperado, default 0.10
	// MaxDivergence rechaza el cross-check si las dos estimaciones
	// difieren más que esto.
	MaxDivergence float64 // default 0.20
	// ScoreCeiling es el circuit breaker: si la media móvil del accuracy
	// score (Brier) lo supera, se pausan todos los commits nuevos.
	ScoreCeiling float64 // default 0.35
	RepeatWindow time.Duration // ventana anti-repetición por mercado, default 24h
	// FavorBoost es el bonus aditivo de ranking para categorías favorecidas.
	// Nunca salta las gates duras.
	FavorBoost float64 // default 5
}

// DefaultConfig devuelve los umbrales por defecto del Decision Engine.
func DefaultConfig() Config {
	return Config{
		MaxDaily:       10,
		MaxPerCategory: 3,
		Cooldown:       5 * time.Minute,
		MinScore:       60,
		MinConfidence:  domain.OppConfidenceMedium,
		MinEdge:        0.10,
		MaxDivergence:  0.20,
		ScoreCeiling:   0.35,
		RepeatWindow:   24 * time.Hour,
		FavorBoost:     5,
	}
}

// Validate falla rápido en umbrales imposibles (error de configuración,
// no se silencia con defaults).
func (c Config) Validate() error {
	if c.MaxDaily < 0 || c.MaxPerCategory < 0 {
		return fmt.Errorf("engine.Config: negative ceilings")
	}
	if c.MinEdge < 0 || c.MinEdge > 1 {
		return fmt.Errorf("engine.Config: min edge %.2f outside [0,1]", c.MinEdge)
	}
	if c.MaxDivergence <= 0 || c.MaxDivergence > 1 {
		return fmt.Errorf("engine.Config: max divergence %.2f outside (0,1]", c.MaxDivergence)
	}
	if c.ScoreCeiling <= 0 || c.ScoreCeiling > 1 {
		return fmt.Errorf("engine.Config: score ceiling %.2f outside (0,1]", c.ScoreCeiling)
	}
	return nil
}

// GateReason identifica la gate que rechazó una oportunidad.
// Un rechazo no es un error: es un no-op deliberado que se contabiliza
// en memoria para observabilidad.
type GateReason string

const (
	ReasonAccepted      GateReason = ""
	ReasonNotRunning    GateReason = "engine_not_running"
	ReasonDailyLimit    GateReason = "daily_limit_reached"
	ReasonCategoryLimit GateReason = "category_limit_reached"
	ReasonCooldown      GateReason = "cooldown_active"
	ReasonAvoided       GateReason = "category_avoided"
	ReasonLowScore      GateReason = "score_below_floor"
	ReasonLowConfidence GateReason = "confidence_below_min"
	ReasonLowEdge       GateReason = "edge_below_min"
	ReasonRepeat        GateReason = "recent_commit_on_market"
	ReasonCircuitOpen   GateReason = "accuracy_circuit_open"
	ReasonDiverged      GateReason = "crosscheck_diverged"
)

// ProbabilitySource es la segunda opinión independiente (consenso multi-venue
// o base rate) contra la que se cross-checkea cada candidato antes del commit.
type ProbabilitySource interface {
	// YesProbability devuelve la probabilidad YES estimada para el mercado.
	// ok=false significa "sin datos": el cross-check se omite con gracia.
	YesProbability(ctx context.Context, m domain.Market) (prob float64, ok bool)
}

// Registrar recibe las predicciones con mercado linkeado para vigilarlas.
type Registrar interface {
	Watch(p domain.Prediction)
}

// LearnerReport es el snapshot que el Performance Learner inyecta al engine.
// Las listas reemplazan por completo a las del ciclo anterior.
type LearnerReport struct {
	RollingScore float64
	SampleSize   int
	Avoid        []domain.Category
	Favor        []domain.Category
}

// Engine evalúa oportunidades y comete predicciones.
//
// La evaluación de gates y la mutación de contadores están serializadas
// bajo un único mutex: dos oportunidades concurrentes no pueden pasar ambas
// un check de techo antes de que alguna incremente el contador.
type Engine struct {
	cfg     Config
	store   ports.PredictionStore
	cross   ProbabilitySource
	watcher Registrar

	mu         sync.Mutex
	running    bool
	st         EngineState
	rejections map[GateReason]int
}

// New crea un Engine. Falla si la configuración es inválida.
func New(cfg Config, store ports.PredictionStore, cross ProbabilitySource, watcher Registrar) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		cross:      cross,
		watcher:    watcher,
		st:         newState(dayOf(time.Now().UTC())),
		rejections: make(map[GateReason]int),
	}, nil
}

// Start habilita el engine. Restore reconstruye los contadores diarios desde
// el store para que un reinicio no salte los techos.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := dayOf(time.Now().UTC())
	committed, err := e.store.ListCommittedSince(ctx, day)
	if err != nil {
		return fmt.Errorf("engine.Start: restore daily counters: %w", err)
	}
	e.st = newState(day)
	for _, p := range committed {
		e.st.CommittedToday++
		e.st.PerCategoryToday[p.Category]++
		if p.CreatedAt.After(e.st.LastCommitAt) {
			e.st.LastCommitAt = p.CreatedAt
		}
		if key := p.MarketKey(); key != "" {
			e.st.recentMarkets[key] = p.CreatedAt
		}
	}
	e.running = true

	slog.Info("decision engine started",
		"committed_today", e.st.CommittedToday,
		"max_daily", e.cfg.MaxDaily,
	)
	return nil
}

// Stop deshabilita el engine. Los commits en vuelo terminan: la escritura
// usa un contexto desacoplado de la cancelación.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Run consume batches del scanner hasta que el canal se cierre o el
// contexto se cancele.
func (e *Engine) Run(ctx context.Context, batches <-chan []domain.Opportunity) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			e.HandleBatch(ctx, batch)
		}
	}
}

// HandleBatch evalúa un batch en orden de ranking. Las categorías
// favorecidas reciben un boost aditivo solo para el orden de evaluación.
func (e *Engine) HandleBatch(ctx context.Context, opps []domain.Opportunity) []domain.Prediction {
	ranked := e.rankWithFavor(opps)

	var committed []domain.Prediction
	for _, opp := range ranked {
		pred, reason, err := e.Evaluate(ctx, opp)
		if err != nil {
			slog.Error("commitment failed",
				"market", domain.TruncateQuestion(opp.Market.Question, opp.Market.Key(), 60),
				"err", err,
			)
			continue
		}
		if reason != ReasonAccepted {
			slog.Debug("opportunity rejected",
				"reason", string(reason),
				"market", domain.TruncateQuestion(opp.Market.Question, opp.Market.Key(), 60),
				"score", opp.Score,
			)
			continue
		}
		committed = append(committed, *pred)
	}

	if len(committed) > 0 {
		slog.Info("batch processed", "candidates", len(opps), "committed", len(committed))
	}
	return committed
}

// Evaluate aplica la cadena de gates en orden, cortando en el primer fallo.
// Si todas pasan, cross-checkea, construye la predicción, la persiste y la
// registra en el watcher. Todo-o-nada: un fallo de persistencia aborta el
// commit sin incrementar ningún contador.
func (e *Engine) Evaluate(ctx context.Context, opp domain.Opportunity) (*domain.Prediction, GateReason, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked(time.Now().UTC())

	if reason := e.gatesLocked(opp); reason != ReasonAccepted {
		e.rejections[reason]++
		return nil, reason, nil
	}

	// Cross-check contra una estimación independiente. Una divergencia
	// fuerte marca el candidato como no fiable: se rechaza, no se fuerza.
	prob := yesProb(opp)
	if crossProb, ok := e.cross.YesProbability(ctx, opp.Market); ok {
		if diff := abs(prob - crossProb); diff > e.cfg.MaxDivergence {
			e.rejections[ReasonDiverged]++
			return nil, ReasonDiverged, nil
		}
		// Política de reconciliación: media simple de ambas estimaciones.
		prob = (prob + crossProb) / 2
	}

	pred := e.buildPrediction(opp, prob)

	// Una escritura empezada corre a término aunque el caller cancele.
	writeCtx := context.WithoutCancel(ctx)
	if err := e.store.CreatePrediction(writeCtx, pred); err != nil {
		return nil, ReasonAccepted, fmt.Errorf("engine.Evaluate: persist prediction: %w", err)
	}

	// El commit aterrizó: ahora sí mutamos el estado.
	now := time.Now().UTC()
	e.st.CommittedToday++
	e.st.PerCategoryToday[pred.Category]++
	e.st.LastCommitAt = now
	if key := pred.MarketKey(); key != "" {
		e.st.recentMarkets[key] = now
		if e.watcher != nil {
			e.watcher.Watch(pred)
		}
	}

	slog.Info("prediction committed",
		"id", pred.ID,
		"question", domain.TruncateQuestion(pred.Question, pred.ID, 60),
		"direction", string(pred.Direction),
		"probability", fmt.Sprintf("%.2f", pred.Probability),
		"category", string(pred.Category),
	)
	return &pred, ReasonAccepted, nil
}

// gatesLocked aplica las gates duras en orden. Requiere e.mu.
func (e *Engine) gatesLocked(opp domain.Opportunity) GateReason {
	now := time.Now().UTC()

	if !e.running {
		return ReasonNotRunning
	}
	if e.st.CommittedToday >= e.cfg.MaxDaily {
		return ReasonDailyLimit
	}
	if e.st.PerCategoryToday[opp.Category] >= e.cfg.MaxPerCategory {
		return ReasonCategoryLimit
	}
	if !e.st.LastCommitAt.IsZero() && now.Sub(e.st.LastCommitAt) < e.cfg.Cooldown {
		return ReasonCooldown
	}
	if e.st.Avoid[opp.Category] {
		return ReasonAvoided
	}
	if opp.Score < e.cfg.MinScore {
		return ReasonLowScore
	}
	if opp.Confidence < e.cfg.MinConfidence {
		return ReasonLowConfidence
	}
	if opp.Edge < e.cfg.MinEdge {
		return ReasonLowEdge
	}
	e.st.pruneRecent(now, e.cfg.RepeatWindow)
	if key := opp.Market.Key(); key != "" {
		if _, recent := e.st.recentMarkets[key]; recent {
			return ReasonRepeat
		}
	}
	// Circuit breaker: rendimiento reciente pobre pausa todos los commits.
	if e.st.RollingSampleSize > 0 && e.st.RollingScore > e.cfg.ScoreCeiling {
		return ReasonCircuitOpen
	}
	return ReasonAccepted
}

// buildPrediction arma la predicción con el razonamiento completo.
func (e *Engine) buildPrediction(opp domain.Opportunity, prob float64) domain.Prediction {
	direction := opp.Direction
	if direction == "" {
		direction = domain.DirectionYes
	}
	// prob está en espacio YES; normalizar al lado de la dirección.
	sideProb := prob
	if direction == domain.DirectionNo {
		sideProb = 1 - prob
	}

	reasoning := fmt.Sprintf(
		"score %.0f (%s, confidence %s): market at %s vs base rate %s over %d resolved analogs; edge %.2f; final %s %s after cross-check",
		opp.Score, string(opp.Label), opp.Confidence,
		domain.FormatProb(opp.Market.YesPrice), domain.FormatProb(opp.BaseRate),
		opp.SampleSize, opp.Edge, string(direction), domain.FormatProb(sideProb),
	)

	return domain.Prediction{
		ID:          uuid.NewString(),
		Question:    opp.Market.Question,
		Probability: sideProb,
		Direction:   direction,
		Category:    opp.Category,
		Reasoning:   reasoning,
		MarketVenue: opp.Market.Venue,
		MarketID:    opp.Market.ID,
		Status:      domain.PredictionOpen,
		CreatedAt:   time.Now().UTC(),
	}
}

// rankWithFavor ordena por score + boost de categorías favorecidas.
func (e *Engine) rankWithFavor(opps []domain.Opportunity) []domain.Opportunity {
	e.mu.Lock()
	favor := make(map[domain.Category]bool, len(e.st.Favor))
	for c := range e.st.Favor {
		favor[c] = true
	}
	e.mu.Unlock()

	ranked := make([]domain.Opportunity, len(opps))
	copy(ranked, opps)
	effective := func(o domain.Opportunity) float64 {
		if favor[o.Category] {
			return o.Score + e.cfg.FavorBoost
		}
		return o.Score
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return effective(ranked[i]) > effective(ranked[j])
	})
	return ranked
}

// ApplyLearner reemplaza (no mergea) las señales avoid/favor y la media
// móvil de accuracy con el snapshot fresco del Learner.
func (e *Engine) ApplyLearner(report LearnerReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.st.Avoid = make(map[domain.Category]bool, len(report.Avoid))
	for _, c := range report.Avoid {
		e.st.Avoid[c] = true
	}
	e.st.Favor = make(map[domain.Category]bool, len(report.Favor))
	for _, c := range report.Favor {
		e.st.Favor[c] = true
	}
	e.st.RollingScore = report.RollingScore
	e.st.RollingSampleSize = report.SampleSize

	slog.Info("learner signals applied",
		"rolling_score", fmt.Sprintf("%.3f", report.RollingScore),
		"samples", report.SampleSize,
		"avoid", report.Avoid,
		"favor", report.Favor,
	)
}

// Status es el snapshot observable del engine.
type Status struct {
	Running          bool
	CommittedToday   int
	PerCategoryToday map[domain.Category]int
	LastCommitAt     time.Time
	RollingScore     float64
	Avoid            []domain.Category
	Favor            []domain.Category
	Rejections       map[GateReason]int
}

// Status devuelve una copia del estado para observabilidad.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running:          e.running,
		CommittedToday:   e.st.CommittedToday,
		PerCategoryToday: make(map[domain.Category]int, len(e.st.PerCategoryToday)),
		LastCommitAt:     e.st.LastCommitAt,
		RollingScore:     e.st.RollingScore,
		Rejections:       make(map[GateReason]int, len(e.rejections)),
	}
	for c, n := range e.st.PerCategoryToday {
		st.PerCategoryToday[c] = n
	}
	for c := range e.st.Avoid {
		st.Avoid = append(st.Avoid, c)
	}
	for c := range e.st.Favor {
		st.Favor = append(st.Favor, c)
	}
	for r, n := range e.rejections {
		st.Rejections[r] = n
	}
	return st
}

// rolloverLocked resetea los contadores al cruzar medianoche UTC. Requiere e.mu.
func (e *Engine) rolloverLocked(now time.Time) {
	day := dayOf(now)
	if day.After(e.st.Day) {
		slog.Info("daily counters reset", "day", day.Format("2006-01-02"))
		e.st.resetDaily(day)
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// yesProb normaliza la probabilidad sugerida al espacio YES.
func yesProb(opp domain.Opportunity) float64 {
	if opp.Direction == domain.DirectionNo {
		return 1 - opp.SuggestedProb
	}
	if opp.SuggestedProb == 0 {
		return opp.BaseRate
	}
	return opp.SuggestedProb
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
