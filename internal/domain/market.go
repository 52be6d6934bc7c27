package domain

import (
	"fmt"
	"time"
)

// MarketStatus es el estado del ciclo de vida de un mercado en su venue.
type MarketStatus string

const (
	MarketActive   MarketStatus = "active"
	MarketClosed   MarketStatus = "closed"
	MarketResolved MarketStatus = "resolved"
)

// Outcome es el resultado de un mercado binario ya resuelto.
type Outcome string

const (
	OutcomeYes   Outcome = "yes"
	OutcomeNo    Outcome = "no"
	OutcomeUnset Outcome = ""
)

// Market es el snapshot de un mercado de predicción binario en un venue.
// Es de solo lectura para el core: el adapter del venue lo refresca cada ciclo.
type Market struct {
	Venue     string
	ID        string
	Question  string
	YesPrice  float64 // probabilidad implícita del lado YES (0-1)
	Volume    float64
	Liquidity float64
	EndDate   time.Time
	Status    MarketStatus
	Outcome   Outcome
}

// Key identifica un mercado de forma única entre venues ("venue:id").
func (m Market) Key() string {
	return m.Venue + ":" + m.ID
}

// HoursToClose devuelve las horas hasta que el mercado cierra.
// Devuelve 0 si EndDate no está definido o ya pasó.
func (m Market) HoursToClose() float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := time.Until(m.EndDate).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// ClosesWithin devuelve true si el mercado cierra dentro de la ventana dada.
func (m Market) ClosesWithin(window time.Duration) bool {
	if m.EndDate.IsZero() {
		return false
	}
	until := time.Until(m.EndDate)
	return until > 0 && until <= window
}

// VenueStatus es el estado terminal reportado por el venue para un mercado.
type VenueStatus struct {
	Resolved bool
	Outcome  bool // válido solo si Resolved
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres.
// Si la pregunta está vacía usa el key del mercado como fallback.
func TruncateQuestion(question, key string, maxLen int) string {
	q := question
	if q == "" {
		q = key
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}

// FormatProb formatea una probabilidad como porcentaje legible.
func FormatProb(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
