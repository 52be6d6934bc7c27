package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// PredictionStore persiste las predicciones y su log de resoluciones.
// Las escrituras son atómicas a nivel de registro individual; no se
// requieren transacciones entre registros.
type PredictionStore interface {
	// CreatePrediction persiste una predicción nueva en estado open.
	CreatePrediction(ctx context.Context, p domain.Prediction) error

	// GetPrediction devuelve una predicción por id, o domain.ErrNotFound.
	GetPrediction(ctx context.Context, id string) (domain.Prediction, error)

	// ResolvePrediction asigna outcome y score juntos, exactamente una vez,
	// y apendea el evento al log de resoluciones en la misma transacción.
	// Devuelve domain.ErrAlreadyResolved si ya estaba resuelta.
	ResolvePrediction(ctx context.Context, id string, outcome bool, score float64, at time.Time) error

	// AbandonPrediction marca una predicción como abandonada (el mercado
	// desapareció o nunca se resolvió dentro del horizonte).
	AbandonPrediction(ctx context.Context, id string, reason string) error

	// ListResolvedSince devuelve las predicciones resueltas desde el instante dado.
	ListResolvedSince(ctx context.Context, since time.Time) ([]domain.Prediction, error)

	// ListOpen devuelve las predicciones aún sin resolver (para reconstruir
	// el watcher al arrancar).
	ListOpen(ctx context.Context) ([]domain.Prediction, error)

	// ListCommittedSince devuelve las predicciones creadas desde el instante
	// dado (para reconstruir los contadores diarios al arrancar).
	ListCommittedSince(ctx context.Context, since time.Time) ([]domain.Prediction, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
