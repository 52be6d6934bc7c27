// Package watcher vigila los mercados linkeados a predicciones abiertas y
// cierra el feedback loop: al resolverse el venue, calcula el accuracy
// score, lo persiste y emite el evento de resolución.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// Config controla el poll del watcher.
type Config struct {
	PollInterval time.Duration // default 10m
	// Horizon abandona predicciones cuyo mercado nunca se resuelve.
	Horizon time.Duration // default 30 días
}

// DefaultConfig devuelve la configuración por defecto del watcher.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Minute,
		Horizon:      30 * 24 * time.Hour,
	}
}

// missesBeforeAbandon distingue una desaparición real de un venue con un
// fallo parcial: solo abandonamos tras varios polls consecutivos sin el mercado.
const missesBeforeAbandon = 3

// entry es una predicción vigilada: watching → resolved | abandoned.
type entry struct {
	prediction domain.Prediction
	since      time.Time
	misses     int
}

// Watcher pollea el estado de los mercados vigilados en batch por ciclo.
// Varias predicciones pueden vigilar el mismo mercado; cada una se resuelve
// independientemente a partir del mismo poll.
type Watcher struct {
	cfg    Config
	venues ports.VenueProvider
	store  ports.PredictionStore

	mu      sync.Mutex
	watched map[string]entry // prediction id → entry
	subs    []chan domain.ResolutionEvent
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastPoll     time.Time
	resolvedN    int
	abandonedN   int
	lastPollErrs int
}

// New crea un Watcher.
func New(cfg Config, venues ports.VenueProvider, store ports.PredictionStore) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 30 * 24 * time.Hour
	}
	return &Watcher{
		cfg:     cfg,
		venues:  venues,
		store:   store,
		watched: make(map[string]entry),
	}
}

// Subscribe registra un canal que recibirá cada evento de resolución.
// Entrega at-most-once: si el buffer está lleno, el evento se descarta
// con un log (el estado persistido es la fuente de verdad, no el canal).
func (w *Watcher) Subscribe(buffer int) <-chan domain.ResolutionEvent {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.ResolutionEvent, buffer)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Watch añade una predicción con mercado linkeado a la vigilancia.
// Las predicciones sin link se ignoran.
func (w *Watcher) Watch(p domain.Prediction) {
	if p.MarketKey() == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.watched[p.ID]; exists {
		return
	}
	w.watched[p.ID] = entry{prediction: p, since: time.Now().UTC()}
	slog.Debug("watching prediction", "id", p.ID, "market", p.MarketKey())
}

// Restore recarga las predicciones abiertas desde el store al arrancar.
func (w *Watcher) Restore(ctx context.Context) error {
	open, err := w.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("watcher.Restore: list open predictions: %w", err)
	}
	for _, p := range open {
		if p.MarketKey() == "" {
			continue
		}
		w.mu.Lock()
		w.watched[p.ID] = entry{prediction: p, since: p.CreatedAt}
		w.mu.Unlock()
	}
	slog.Info("watcher restored", "watching", len(open))
	return nil
}

// Start arranca el loop de poll. Cada pasada corre a término antes del
// siguiente tick: nunca hay dos polls solapados.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher.Start: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(runCtx)
	return nil
}

// Stop cancela los ticks futuros; un poll en vuelo termina y sus escrituras
// de resolución corren a término.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	slog.Info("watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	slog.Info("watcher starting", "poll_interval", w.cfg.PollInterval)

	w.PollOnce(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollOnce(ctx)
		}
	}
}

// PollOnce ejecuta una pasada completa de resolución: consulta el estado de
// todos los mercados vigilados en batch y resuelve o abandona según toque.
// Un fallo de venue degrada a "nada este ciclo", nunca tumba el loop.
func (w *Watcher) PollOnce(ctx context.Context) {
	w.mu.Lock()
	entries := make([]entry, 0, len(w.watched))
	for _, e := range w.watched {
		entries = append(entries, e)
	}
	w.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	ids := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		key := e.prediction.MarketKey()
		if !seen[key] {
			seen[key] = true
			ids = append(ids, key)
		}
	}

	statuses, err := w.venues.MarketStatus(ctx, ids)
	if err != nil {
		slog.Warn("resolution poll failed, skipping cycle", "err", err)
		w.mu.Lock()
		w.lastPollErrs++
		w.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	for _, e := range entries {
		key := e.prediction.MarketKey()
		status, known := statuses[key]

		switch {
		case known && status.Resolved:
			w.resolve(ctx, e.prediction, status.Outcome, now)
		case !known:
			// Inconsistencia de datos: el mercado ya no existe en el venue.
			if w.recordMiss(e.prediction.ID) >= missesBeforeAbandon {
				w.abandon(ctx, e.prediction, "market disappeared from venue")
			}
		case now.Sub(e.since) > w.cfg.Horizon:
			w.abandon(ctx, e.prediction, "resolution horizon elapsed")
		default:
			w.clearMisses(e.prediction.ID)
		}
	}

	w.mu.Lock()
	w.lastPoll = now
	w.mu.Unlock()
}

// resolve calcula outcome + score y los persiste atómicamente.
// Es idempotente: re-observar una predicción ya resuelta es un no-op.
func (w *Watcher) resolve(ctx context.Context, p domain.Prediction, outcome bool, at time.Time) {
	score := domain.AccuracyScore(p.YesProbability(), outcome)

	// La escritura empezada corre a término aunque el watcher se pare.
	writeCtx := context.WithoutCancel(ctx)
	err := w.store.ResolvePrediction(writeCtx, p.ID, outcome, score, at)
	switch {
	case errors.Is(err, domain.ErrAlreadyResolved):
		w.forget(p.ID)
		return
	case err != nil:
		// Fallo de persistencia: la predicción sigue vigilada y se
		// reintentará en el siguiente poll.
		slog.Error("resolve persist failed", "id", p.ID, "err", err)
		return
	}

	w.forget(p.ID)
	w.mu.Lock()
	w.resolvedN++
	w.mu.Unlock()

	slog.Info("prediction resolved",
		"id", p.ID,
		"market", p.MarketKey(),
		"outcome", outcome,
		"score", fmt.Sprintf("%.4f", score),
	)

	w.emit(domain.ResolutionEvent{
		PredictionID: p.ID,
		MarketKey:    p.MarketKey(),
		Category:     p.Category,
		Outcome:      outcome,
		Score:        score,
		ResolvedAt:   at,
	})
}

// abandon mueve la predicción al estado terminal abandoned. Se loguea
// siempre: nunca se descarta en silencio.
func (w *Watcher) abandon(ctx context.Context, p domain.Prediction, reason string) {
	writeCtx := context.WithoutCancel(ctx)
	if err := w.store.AbandonPrediction(writeCtx, p.ID, reason); err != nil {
		slog.Error("abandon persist failed", "id", p.ID, "err", err)
		return
	}
	w.forget(p.ID)
	w.mu.Lock()
	w.abandonedN++
	w.mu.Unlock()

	slog.Warn("prediction abandoned", "id", p.ID, "market", p.MarketKey(), "reason", reason)
}

func (w *Watcher) recordMiss(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.watched[id]
	if !ok {
		return 0
	}
	e.misses++
	w.watched[id] = e
	return e.misses
}

func (w *Watcher) clearMisses(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.watched[id]; ok && e.misses > 0 {
		e.misses = 0
		w.watched[id] = e
	}
}

func (w *Watcher) forget(id string) {
	w.mu.Lock()
	delete(w.watched, id)
	w.mu.Unlock()
}

func (w *Watcher) emit(ev domain.ResolutionEvent) {
	w.mu.Lock()
	subs := w.subs
	w.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("resolution subscriber buffer full, dropping event", "id", ev.PredictionID)
		}
	}
}

// Status es el snapshot observable del watcher.
type Status struct {
	Running    bool
	Watching   int
	LastPollAt time.Time
	Resolved   int
	Abandoned  int
	PollErrors int
}

// Status devuelve el snapshot actual.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:    w.running,
		Watching:   len(w.watched),
		LastPollAt: w.lastPoll,
		Resolved:   w.resolvedN,
		Abandoned:  w.abandonedN,
		PollErrors: w.lastPollErrs,
	}
}
