package domain

import "time"

// Direction es el lado sugerido de una predicción.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// OppLabel clasifica por qué una oportunidad es interesante.
// mispriced > high_volume > closing_soon en prioridad.
type OppLabel string

const (
	LabelMispriced   OppLabel = "mispriced"
	LabelHighVolume  OppLabel = "high_volume"
	LabelClosingSoon OppLabel = "closing_soon"
	LabelNone        OppLabel = ""
)

// OppConfidence es la confianza del scorer en una oportunidad.
// Es ordinal: high > medium > low.
type OppConfidence int

const (
	OppConfidenceLow OppConfidence = iota
	OppConfidenceMedium
	OppConfidenceHigh
)

func (c OppConfidence) String() string {
	switch c {
	case OppConfidenceHigh:
		return "high"
	case OppConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Opportunity es un candidato puntuado para actuar sobre un mercado.
// Vive un solo ciclo de scan: se consume inmediatamente o se descarta.
type Opportunity struct {
	Market    Market
	ScannedAt time.Time

	// --- Base rate y divergencia ---
	BaseRate   float64 // prior estimado de preguntas similares ya resueltas
	SampleSize int     // 0 = el servicio de base rate no tenía datos
	Divergence float64 // |precio actual - base rate|

	// --- Acción sugerida ---
	Direction     Direction
	SuggestedProb float64
	Edge          float64 // edge esperado (≈ divergencia)

	Category   Category
	Label      OppLabel
	Confidence OppConfidence
	Score      float64 // score compuesto (0-100)
}
