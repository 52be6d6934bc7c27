package ports

import (
	"context"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// VenueProvider es la vista uniforme del core sobre cualquier venue de
// mercados de predicción. Los adapters normalizan el JSON de cada API
// a domain.Market; el core nunca ve schemas de terceros.
type VenueProvider interface {
	// SearchMarkets devuelve mercados cuyo título matchea la consulta.
	SearchMarkets(ctx context.Context, query string) ([]domain.Market, error)

	// HotMarkets devuelve hasta limit mercados activos ordenados por volumen.
	HotMarkets(ctx context.Context, limit int) ([]domain.Market, error)

	// GetMarket devuelve el snapshot actual de un mercado por su id.
	GetMarket(ctx context.Context, id string) (domain.Market, error)

	// MarketStatus consulta en batch el estado de resolución de varios mercados.
	// Los ids que el venue ya no conoce se omiten del mapa resultado.
	MarketStatus(ctx context.Context, ids []string) (map[string]domain.VenueStatus, error)
}
