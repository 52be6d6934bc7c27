// Package scanner implementa el loop autónomo de escaneo: fetch de mercados,
// scoring, ranking y publicación de las mejores oportunidades a suscriptores.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
)

// Config controla el comportamiento del scanner.
type Config struct {
	Interval  time.Duration // default 30m
	BatchSize int           // mercados candidatos por ciclo, default 40
	TopN      int           // oportunidades publicadas por ciclo, default 10
}

// DefaultConfig devuelve la configuración por defecto del scanner.
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Minute,
		BatchSize: 40,
		TopN:      10,
	}
}

// OpportunityScorer es el subconjunto del scorer que usa el Scanner.
type OpportunityScorer interface {
	ScoreAll(ctx context.Context, markets []domain.Market) []domain.Opportunity
}

// Status es el snapshot observable del scanner.
type Status struct {
	Running       bool
	Cycles        int
	LastScanAt    time.Time
	LastFound     int
	LastCycleErr  string
	NextScanAfter time.Duration
}

// Scanner ejecuta ciclos de escaneo periódicos y publica los resultados.
//
// Contrato de publicación: cada suscriptor recibe el batch completo de un
// ciclo como un solo mensaje, at-most-once — si su buffer está lleno el
// batch se descarta con un log, nunca se bloquea el loop. El orden entre
// ciclos se preserva dentro de cada canal.
type Scanner struct {
	cfg    Config
	venues ports.VenueProvider
	scorer OpportunityScorer

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	subs     []chan []domain.Opportunity
	cycles   int
	lastScan time.Time
	lastN    int
	lastErr  error
}

// New crea un Scanner con las dependencias inyectadas.
func New(cfg Config, venues ports.VenueProvider, scorer OpportunityScorer) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 40
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	return &Scanner{cfg: cfg, venues: venues, scorer: scorer}
}

// Subscribe registra un canal que recibirá el ranking de cada ciclo.
// Debe llamarse antes de Start.
func (s *Scanner) Subscribe(buffer int) <-chan []domain.Opportunity {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan []domain.Opportunity, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Start arranca el loop: un scan inmediato y luego uno por intervalo.
// El cuerpo de cada ciclo corre a término antes del siguiente tick.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scanner.Start: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop cancela los ticks futuros. Un scan en vuelo termina su ciclo.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("scanner stopped")
}

// run es el loop principal: ticker + select, al estilo clásico.
func (s *Scanner) run(ctx context.Context) {
	defer close(s.done)

	slog.Info("scanner starting",
		"interval", s.cfg.Interval,
		"batch", s.cfg.BatchSize,
		"top_n", s.cfg.TopN,
	)

	s.cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// ScanOnce ejecuta exactamente un ciclo de escaneo de forma síncrona y
// devuelve las oportunidades rankeadas sin publicarlas a los suscriptores.
func (s *Scanner) ScanOnce(ctx context.Context) ([]domain.Opportunity, error) {
	markets, err := s.venues.HotMarkets(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("scanner.ScanOnce: fetch markets: %w", err)
	}

	opps := s.scorer.ScoreAll(ctx, markets)
	if len(opps) > s.cfg.TopN {
		opps = opps[:s.cfg.TopN]
	}
	return opps, nil
}

// cycle hace scan + publish, registrando el resultado para el status.
// Un fallo de fetch no tumba el loop: se loguea, se publica vacío y se
// espera al siguiente tick.
func (s *Scanner) cycle(ctx context.Context) {
	start := time.Now()

	opps, err := s.ScanOnce(ctx)
	if err != nil {
		slog.Error("scan cycle failed", "err", err)
		opps = nil
	}

	s.publish(opps)

	s.mu.Lock()
	s.cycles++
	s.lastScan = time.Now().UTC()
	s.lastN = len(opps)
	s.lastErr = err
	s.mu.Unlock()

	slog.Info("scan cycle complete",
		"opportunities", len(opps),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// publish reparte el batch a todos los suscriptores sin bloquear.
func (s *Scanner) publish(opps []domain.Opportunity) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- opps:
		default:
			slog.Warn("subscriber buffer full, dropping batch", "opportunities", len(opps))
		}
	}
}

// Status devuelve el snapshot actual del scanner.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running,
		Cycles:     s.cycles,
		LastScanAt: s.lastScan,
		LastFound:  s.lastN,
	}
	if s.lastErr != nil {
		st.LastCycleErr = s.lastErr.Error()
	}
	if s.running && !s.lastScan.IsZero() {
		st.NextScanAfter = time.Until(s.lastScan.Add(s.cfg.Interval))
	}
	return st
}
