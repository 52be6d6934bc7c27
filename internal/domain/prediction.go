package domain

import (
	"errors"
	"time"
)

// ErrAlreadyResolved se devuelve al intentar resolver una predicción
// que ya tiene outcome y score asignados.
var ErrAlreadyResolved = errors.New("prediction already resolved")

// ErrNotFound se devuelve cuando una predicción no existe en el store.
var ErrNotFound = errors.New("prediction not found")

// PredictionStatus es el estado de una predicción vigilada.
type PredictionStatus string

const (
	PredictionOpen      PredictionStatus = "open"
	PredictionResolved  PredictionStatus = "resolved"
	PredictionAbandoned PredictionStatus = "abandoned"
)

// Prediction es la unidad durable de compromiso del Decision Engine.
// Outcome y Score se asignan juntos, exactamente una vez, cuando el
// Resolution Watcher observa el resultado. El resto es inmutable.
type Prediction struct {
	ID          string
	Question    string
	Probability float64 // probabilidad del lado Direction
	Direction   Direction
	Category    Category
	Reasoning   string

	// Link opcional al mercado tradeable (vacío = predicción sin mercado).
	MarketVenue string
	MarketID    string

	Status     PredictionStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Outcome    *bool
	Score      *float64 // Brier: error cuadrático, 0 = perfecto, 1 = máximo error
}

// MarketKey devuelve el key del mercado linkeado, o "" si no hay link.
func (p Prediction) MarketKey() string {
	if p.MarketVenue == "" || p.MarketID == "" {
		return ""
	}
	return p.MarketVenue + ":" + p.MarketID
}

// Resolved devuelve true si la predicción ya tiene resultado.
func (p Prediction) Resolved() bool {
	return p.Status == PredictionResolved
}

// YesProbability normaliza la probabilidad al lado YES:
// una predicción "80% NO" equivale a "20% YES".
func (p Prediction) YesProbability() float64 {
	if p.Direction == DirectionNo {
		return 1 - p.Probability
	}
	return p.Probability
}

// AccuracyScore calcula el error cuadrático entre la probabilidad predicha
// y el outcome binario (proper scoring rule: menor es mejor).
//
//	prob 1.0, outcome true  → 0.0 (perfecto)
//	prob 1.0, outcome false → 1.0 (máximo error)
//	prob 0.8 YES, outcome true → 0.04
func AccuracyScore(yesProbability float64, outcome bool) float64 {
	actual := 0.0
	if outcome {
		actual = 1.0
	}
	diff := yesProbability - actual
	return diff * diff
}

// ResolutionEvent notifica que una predicción vigilada se resolvió.
type ResolutionEvent struct {
	PredictionID string
	MarketKey    string
	Category     Category
	Outcome      bool
	Score        float64
	ResolvedAt   time.Time
}
