package venues

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// Aggregator presenta varios venues como un único ports.VenueProvider.
// Un venue que falla se salta ese ciclo (con log); solo devolvemos error
// cuando fallan todos.
type Aggregator struct {
	clients []*Client
}

// NewAggregator crea el agregador sobre los clientes dados.
func NewAggregator(clients ...*Client) *Aggregator {
	return &Aggregator{clients: clients}
}

// SearchMarkets consulta todos los venues en paralelo y mergea resultados.
func (a *Aggregator) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	return a.fanOut(ctx, func(ctx context.Context, c *Client) ([]domain.Market, error) {
		return c.SearchMarkets(ctx, query)
	})
}

// HotMarkets mergea los mercados calientes de todos los venues y devuelve
// los limit de mayor volumen.
func (a *Aggregator) HotMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	markets, err := a.fanOut(ctx, func(ctx context.Context, c *Client) ([]domain.Market, error) {
		return c.HotMarkets(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Volume > markets[j].Volume
	})
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

// GetMarket rutea por el prefijo de venue del key ("venue:id").
func (a *Aggregator) GetMarket(ctx context.Context, key string) (domain.Market, error) {
	venue, id, err := splitKey(key)
	if err != nil {
		return domain.Market{}, fmt.Errorf("venues.GetMarket: %w", err)
	}
	c := a.client(venue)
	if c == nil {
		return domain.Market{}, fmt.Errorf("venues.GetMarket: unknown venue %q", venue)
	}
	return c.GetMarket(ctx, id)
}

// MarketStatus agrupa los keys por venue, consulta cada uno en batch y
// devuelve el mapa con keys completos. Los venues que fallan se omiten:
// sus mercados simplemente no aparecen este ciclo.
func (a *Aggregator) MarketStatus(ctx context.Context, keys []string) (map[string]domain.VenueStatus, error) {
	byVenue := make(map[string][]string)
	for _, key := range keys {
		venue, id, err := splitKey(key)
		if err != nil {
			slog.Warn("malformed market key, skipping", "key", key)
			continue
		}
		byVenue[venue] = append(byVenue[venue], id)
	}

	out := make(map[string]domain.VenueStatus, len(keys))
	var mu sync.Mutex
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	for venue, ids := range byVenue {
		venue, ids := venue, ids
		c := a.client(venue)
		if c == nil {
			slog.Warn("no client for venue, skipping", "venue", venue)
			continue
		}
		g.Go(func() error {
			statuses, err := c.MarketStatus(gctx, ids)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("venue status poll failed, skipping this cycle", "venue", venue, "err", err)
				failures++
				// El poll de este venue falló: tratamos sus mercados como
				// "sin noticias", no como desaparecidos.
				for _, id := range ids {
					out[venue+":"+id] = domain.VenueStatus{Resolved: false}
				}
				return nil
			}
			for id, st := range statuses {
				out[venue+":"+id] = st
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures > 0 && failures == len(byVenue) {
		return nil, fmt.Errorf("venues.MarketStatus: all %d venues failed", failures)
	}
	return out, nil
}

// fanOut ejecuta la consulta contra todos los venues en paralelo.
func (a *Aggregator) fanOut(ctx context.Context, fn func(context.Context, *Client) ([]domain.Market, error)) ([]domain.Market, error) {
	var (
		mu       sync.Mutex
		merged   []domain.Market
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range a.clients {
		c := c
		g.Go(func() error {
			markets, err := fn(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("venue fetch failed, skipping this cycle", "venue", c.Name(), "err", err)
				failures++
				return nil
			}
			merged = append(merged, markets...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures > 0 && failures == len(a.clients) {
		return nil, fmt.Errorf("venues: all %d venues failed", len(a.clients))
	}
	return merged, nil
}

func (a *Aggregator) client(venue string) *Client {
	for _, c := range a.clients {
		if c.Name() == venue {
			return c
		}
	}
	return nil
}

func splitKey(key string) (venue, id string, err error) {
	venue, id, ok := strings.Cut(key, ":")
	if !ok || venue == "" || id == "" {
		return "", "", fmt.Errorf("malformed market key %q", key)
	}
	return venue, id, nil
}
