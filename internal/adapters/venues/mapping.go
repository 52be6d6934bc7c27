package venues

import (
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// marketDTO es el shape normalizado que exponen los venues soportados.
type marketDTO struct {
	ID        string  `json:"id"`
	Question  string  `json:"question"`
	YesPrice  float64 `json:"yes_price"`
	Volume    float64 `json:"volume"`
	Liquidity float64 `json:"liquidity"`
	EndDate   string  `json:"end_date"` // RFC3339, puede venir vacío
	Status    string  `json:"status"`
	Outcome   string  `json:"outcome"` // "yes" | "no" | ""
}

// statusDTO es la respuesta del endpoint de estado en batch.
type statusDTO struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

func (c *Client) toMarkets(dtos []marketDTO) []domain.Market {
	out := make([]domain.Market, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, c.toMarket(dto))
	}
	return out
}

func (c *Client) toMarket(dto marketDTO) domain.Market {
	m := domain.Market{
		Venue:     c.name,
		ID:        dto.ID,
		Question:  dto.Question,
		YesPrice:  clamp01(dto.YesPrice),
		Volume:    dto.Volume,
		Liquidity: dto.Liquidity,
		Status:    mapStatus(dto.Status),
	}
	if dto.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, dto.EndDate); err == nil {
			m.EndDate = t
		}
	}
	switch dto.Outcome {
	case "yes":
		m.Outcome = domain.OutcomeYes
	case "no":
		m.Outcome = domain.OutcomeNo
	}
	return m
}

// mapStatus normaliza los nombres de estado de cada venue. "determined" y
// "finalized" son variantes de resuelto que usan algunos exchanges.
func mapStatus(s string) domain.MarketStatus {
	switch s {
	case "resolved", "determined", "finalized":
		return domain.MarketResolved
	case "closed":
		return domain.MarketClosed
	default:
		return domain.MarketActive
	}
}

// toVenueStatus interpreta el estado de resolución. Un mercado cuenta como
// resuelto solo en estado terminal (closed/determined/finalized/resolved)
// CON resultado definido. ok=false marca la inconsistencia "resuelto sin
// resultado" para que el caller la loguee.
func (d statusDTO) toVenueStatus() (domain.VenueStatus, bool) {
	st := mapStatus(d.Status)
	switch {
	case st == domain.MarketActive:
		return domain.VenueStatus{Resolved: false}, true
	case d.Outcome == "yes":
		return domain.VenueStatus{Resolved: true, Outcome: true}, true
	case d.Outcome == "no":
		return domain.VenueStatus{Resolved: true, Outcome: false}, true
	case st == domain.MarketClosed:
		// Cerrado pero aún sin determinar: seguimos vigilando.
		return domain.VenueStatus{Resolved: false}, true
	default:
		return domain.VenueStatus{}, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
