package ports

import (
	"context"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// BaseRateService estima el prior de una pregunta a partir de preguntas
// similares ya resueltas. Un error o un SampleSize 0 degradan a un
// rate neutral de 0.5 — nunca son fatales para el caller.
type BaseRateService interface {
	BaseRate(ctx context.Context, question string) (domain.BaseRate, error)
}
