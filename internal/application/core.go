// Package application compone el loop de control completo: scanner →
// decision engine → resolution watcher → performance learner → (ajusta)
// decision engine → siguiente ciclo.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alejandrodnm/oraculo/internal/application/cluster"
	"github.com/alejandrodnm/oraculo/internal/application/consensus"
	"github.com/alejandrodnm/oraculo/internal/application/engine"
	"github.com/alejandrodnm/oraculo/internal/application/learner"
	"github.com/alejandrodnm/oraculo/internal/application/scanner"
	"github.com/alejandrodnm/oraculo/internal/application/scorer"
	"github.com/alejandrodnm/oraculo/internal/application/watcher"
	"github.com/alejandrodnm/oraculo/internal/domain"
	"github.com/alejandrodnm/oraculo/internal/ports"
	"github.com/alejandrodnm/oraculo/internal/similarity"
)

// Deps son las dependencias externas del Core, inyectadas desde cmd/.
type Deps struct {
	Venues   ports.VenueProvider
	Rates    ports.BaseRateService
	Store    ports.PredictionStore
	Notifier ports.Notifier
}

// Config agrega la configuración de todos los componentes del loop.
type Config struct {
	Scanner   scanner.Config
	Scorer    scorer.Config
	Engine    engine.Config
	Watcher   watcher.Config
	Learner   learner.Config
	Consensus consensus.Config
	// ClusterThreshold es el umbral de similitud del clustering.
	ClusterThreshold float64
	// ArbSpread es el umbral del detector de arbitraje.
	ArbSpread float64
	// NotifyRecipient es el destinatario por defecto de los resúmenes.
	NotifyRecipient string
}

// Core es la superficie operacional del sistema: suficiente para que un
// CLI o scheduler lo maneje sin conocer internals.
type Core struct {
	deps Deps
	cfg  Config

	clusterer *cluster.Clusterer
	consensus *consensus.Engine
	arb       *consensus.Detector
	scorer    *scorer.Scorer
	scanner   *scanner.Scanner
	engine    *engine.Engine
	watcher   *watcher.Watcher
	learner   *learner.Learner

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New construye el Core cableando todos los componentes. Falla rápido si
// alguna configuración es inválida.
func New(cfg Config, deps Deps, sim *similarity.Engine) (*Core, error) {
	clusterer := cluster.New(sim, cfg.ClusterThreshold)
	cons := consensus.New(cfg.Consensus)
	arb := consensus.NewDetector(cfg.ArbSpread)
	sc := scorer.New(cfg.Scorer, deps.Rates)

	w := watcher.New(cfg.Watcher, deps.Venues, deps.Store)

	cross := &consensusSource{
		venues:    deps.Venues,
		clusterer: clusterer,
		consensus: cons,
	}
	eng, err := engine.New(cfg.Engine, deps.Store, cross, w)
	if err != nil {
		return nil, fmt.Errorf("application.New: %w", err)
	}

	lrn, err := learner.New(cfg.Learner, deps.Store)
	if err != nil {
		return nil, fmt.Errorf("application.New: %w", err)
	}

	return &Core{
		deps:      deps,
		cfg:       cfg,
		clusterer: clusterer,
		consensus: cons,
		arb:       arb,
		scorer:    sc,
		scanner:   scanner.New(cfg.Scanner, deps.Venues, sc),
		engine:    eng,
		watcher:   w,
		learner:   lrn,
	}, nil
}

// Start arranca el modo autónomo: scanner, watcher, engine y el feedback
// loop del learner.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("core.Start: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.stop = cancel
	c.mu.Unlock()

	if err := c.engine.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := c.watcher.Restore(runCtx); err != nil {
		slog.Warn("watcher restore failed, starting empty", "err", err)
	}

	// Seed inicial de señales del learner antes del primer ciclo.
	if report, err := c.learner.Analyze(runCtx); err != nil {
		slog.Warn("initial performance analysis failed", "err", err)
	} else {
		c.engine.ApplyLearner(report.ToEngine())
	}

	batches := c.scanner.Subscribe(2)
	resolutions := c.watcher.Subscribe(32)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.consumeBatches(runCtx, batches)
	}()
	go func() {
		defer c.wg.Done()
		c.consumeResolutions(runCtx, resolutions)
	}()

	if err := c.watcher.Start(runCtx); err != nil {
		return err
	}
	if err := c.scanner.Start(runCtx); err != nil {
		return err
	}

	slog.Info("autonomous loop started")
	return nil
}

// Stop detiene los timers y espera a que los consumers terminen. Las
// escrituras en vuelo corren a término.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	c.mu.Unlock()

	c.scanner.Stop()
	c.watcher.Stop()
	c.engine.Stop()
	stop()
	c.wg.Wait()
	slog.Info("autonomous loop stopped")
}

// ScanOnce ejecuta un solo ciclo de escaneo y devuelve el ranking,
// sin comprometer ninguna predicción.
func (c *Core) ScanOnce(ctx context.Context) ([]domain.Opportunity, error) {
	return c.scanner.ScanOnce(ctx)
}

// ForceCycle ejecuta un ciclo síncrono completo de scan-then-decide:
// escanea, reporta arbitrajes entre venues y pasa el ranking por el engine.
func (c *Core) ForceCycle(ctx context.Context) ([]domain.Prediction, error) {
	opps, err := c.scanner.ScanOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("core.ForceCycle: %w", err)
	}

	c.reportArbitrage(ctx)

	committed := c.engine.HandleBatch(ctx, opps)
	c.notifyOpportunities(ctx, opps, committed)
	return committed, nil
}

// Status agrega los snapshots de todos los componentes.
type Status struct {
	Scanner scanner.Status
	Engine  engine.Status
	Watcher watcher.Status
}

// GetStatus devuelve contadores y timestamps de todo el loop.
func (c *Core) GetStatus() Status {
	return Status{
		Scanner: c.scanner.Status(),
		Engine:  c.engine.Status(),
		Watcher: c.watcher.Status(),
	}
}

// consumeBatches es el lado receptor del fan-out del scanner.
func (c *Core) consumeBatches(ctx context.Context, batches <-chan []domain.Opportunity) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			c.reportArbitrage(ctx)
			committed := c.engine.HandleBatch(ctx, batch)
			c.notifyOpportunities(ctx, batch, committed)
		}
	}
}

// consumeResolutions cierra el feedback loop: cada resolución dispara un
// re-análisis de rendimiento que ajusta las señales del engine.
func (c *Core) consumeResolutions(ctx context.Context, resolutions <-chan domain.ResolutionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-resolutions:
			if !ok {
				return
			}
			c.notify(ctx, formatResolution(ev))

			report, err := c.learner.Analyze(ctx)
			if err != nil {
				slog.Warn("performance analysis failed", "err", err)
				continue
			}
			c.engine.ApplyLearner(report.ToEngine())
		}
	}
}

// reportArbitrage clusteriza el batch caliente y notifica spreads tradeables.
func (c *Core) reportArbitrage(ctx context.Context) {
	markets, err := c.deps.Venues.HotMarkets(ctx, c.cfg.Scanner.BatchSize)
	if err != nil {
		slog.Debug("arbitrage fetch failed, skipping", "err", err)
		return
	}
	clusters := c.clusterer.Partition(markets)
	pairs := c.arb.Detect(clusters)
	if len(pairs) == 0 {
		return
	}

	for _, p := range pairs {
		slog.Info("arbitrage spread detected",
			"topic", domain.TruncateQuestion(p.Topic, "", 60),
			"spread_pts", fmt.Sprintf("%.1f", p.SpreadPoints()),
			"strategy", p.Strategy,
		)
	}
	c.notify(ctx, formatArbitrage(pairs))
}

func (c *Core) notifyOpportunities(ctx context.Context, opps []domain.Opportunity, committed []domain.Prediction) {
	if len(opps) == 0 {
		return
	}
	c.notify(ctx, formatCycle(opps, committed))
}

// notify entrega fire-and-forget: un fallo solo se loguea.
func (c *Core) notify(ctx context.Context, msg string) {
	if c.deps.Notifier == nil || msg == "" {
		return
	}
	if err := c.deps.Notifier.Deliver(ctx, c.cfg.NotifyRecipient, msg); err != nil {
		slog.Warn("notifier delivery failed", "err", err)
	}
}

// --- formateo de resúmenes ---

func formatCycle(opps []domain.Opportunity, committed []domain.Prediction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scan: %d opportunities, %d committed\n", len(opps), len(committed))
	for i, o := range opps {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&sb, "%d. [%.0f] %s — %s @ %s (edge %.2f, %s)\n",
			i+1, o.Score,
			domain.TruncateQuestion(o.Market.Question, o.Market.Key(), 50),
			string(o.Direction), domain.FormatProb(o.SuggestedProb), o.Edge, o.Confidence)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatArbitrage(pairs []domain.ArbitragePair) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "arbitrage: %d cross-venue spreads\n", len(pairs))
	for i, p := range pairs {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, "%.1f pts on %q: %s\n",
			p.SpreadPoints(), domain.TruncateQuestion(p.Topic, "", 40), p.Strategy)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatResolution(ev domain.ResolutionEvent) string {
	outcome := "NO"
	if ev.Outcome {
		outcome = "YES"
	}
	return fmt.Sprintf("resolved %s → %s (accuracy score %.4f, category %s)",
		ev.MarketKey, outcome, ev.Score, string(ev.Category))
}
