// Package venues normaliza las APIs REST de los venues de mercados de
// predicción a domain.Market. El core nunca ve los schemas de terceros.
package venues

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

const (
	requestTimeout = 5 * time.Second
	// Un solo retry en errores transitorios; después se salta el item
	// este ciclo en vez de bloquear el loop.
	maxRetries = 1
	retryWait  = 500 * time.Millisecond

	defaultRatePerSec = 10
	defaultBurst      = 5
)

// Client es el adapter HTTP de un venue concreto, con rate limiting,
// retry acotado y circuit breaker para degradar con gracia cuando el
// venue está caído.
type Client struct {
	name    string
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient crea el adapter para un venue. ratePerSec <= 0 usa el default.
func NewClient(name, baseURL string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("venue circuit state change", "venue", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		name:    name,
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), defaultBurst),
		breaker: breaker,
	}
}

// Name devuelve el identificador del venue.
func (c *Client) Name() string {
	return c.name
}

// SearchMarkets busca mercados por texto.
func (c *Client) SearchMarkets(ctx context.Context, query string) ([]domain.Market, error) {
	var dtos []marketDTO
	u := fmt.Sprintf("%s/markets?query=%s", c.base, url.QueryEscape(query))
	if err := c.get(ctx, u, &dtos); err != nil {
		return nil, fmt.Errorf("venues.SearchMarkets[%s]: %w", c.name, err)
	}
	return c.toMarkets(dtos), nil
}

// HotMarkets devuelve hasta limit mercados activos ordenados por volumen.
func (c *Client) HotMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	var dtos []marketDTO
	u := fmt.Sprintf("%s/markets/hot?limit=%d", c.base, limit)
	if err := c.get(ctx, u, &dtos); err != nil {
		return nil, fmt.Errorf("venues.HotMarkets[%s]: %w", c.name, err)
	}
	return c.toMarkets(dtos), nil
}

// GetMarket devuelve el snapshot de un mercado.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var dto marketDTO
	u := fmt.Sprintf("%s/markets/%s", c.base, url.PathEscape(id))
	if err := c.get(ctx, u, &dto); err != nil {
		return domain.Market{}, fmt.Errorf("venues.GetMarket[%s]: %w", c.name, err)
	}
	return c.toMarket(dto), nil
}

// MarketStatus consulta en batch el estado de resolución. Los ids que el
// venue ya no conoce se omiten del resultado.
func (c *Client) MarketStatus(ctx context.Context, ids []string) (map[string]domain.VenueStatus, error) {
	var dtos []statusDTO
	u := fmt.Sprintf("%s/markets/status?ids=%s", c.base, url.QueryEscape(strings.Join(ids, ",")))
	if err := c.get(ctx, u, &dtos); err != nil {
		return nil, fmt.Errorf("venues.MarketStatus[%s]: %w", c.name, err)
	}

	out := make(map[string]domain.VenueStatus, len(dtos))
	for _, dto := range dtos {
		status, ok := dto.toVenueStatus()
		if !ok {
			// Inconsistencia: estado terminal sin resultado definido.
			slog.Warn("terminal market without definite result",
				"venue", c.name, "market", dto.ID, "status", dto.Status)
			continue
		}
		out[dto.ID] = status
	}
	return out, nil
}

// get hace un GET con rate limiting, circuit breaker y un retry.
func (c *Client) get(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.breaker.Execute(func() (any, error) {
			return c.doGet(ctx, url)
		})
		if err == nil {
			return json.Unmarshal(body.([]byte), out)
		}
		lastErr = err

		if gobreaker.ErrOpenState == err || ctx.Err() != nil {
			break // el breaker está abierto o nos cancelaron: no reintentar
		}
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryWait):
			}
		}
	}
	return lastErr
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, c.name)
	}
	return io.ReadAll(resp.Body)
}
