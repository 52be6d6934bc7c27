package domain

// BaseRate es el prior estimado de una pregunta, derivado de mercados
// similares ya resueltos. SampleSize 0 significa "sin datos": el caller
// debe tratar el rate como neutral.
type BaseRate struct {
	Rate       float64
	SampleSize int
}

// NeutralBaseRate es el fallback cuando el servicio de base rates falla
// o no tiene preguntas comparables.
func NeutralBaseRate() BaseRate {
	return BaseRate{Rate: 0.5, SampleSize: 0}
}
