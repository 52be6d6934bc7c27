package engine

import (
	"time"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// EngineState son los contadores de vida del proceso que gobiernan las
// gates del Decision Engine. Se resetea a diario y se reconstruye desde el
// Performance Learner; no se persiste más allá del proceso.
//
// Es un recurso single-writer: solo el Engine lo muta, bajo su mutex.
type EngineState struct {
	Day               time.Time // día UTC al que pertenecen los contadores
	CommittedToday    int
	PerCategoryToday  map[domain.Category]int
	LastCommitAt      time.Time
	RollingScore      float64 // media móvil del accuracy score (Brier, menor = mejor)
	RollingSampleSize int
	Avoid             map[domain.Category]bool
	Favor             map[domain.Category]bool

	// recentMarkets registra el último commit por mercado para la gate
	// de repetición (no más de un commit por mercado en 24h).
	recentMarkets map[string]time.Time
}

func newState(day time.Time) EngineState {
	return EngineState{
		Day:              day,
		PerCategoryToday: make(map[domain.Category]int),
		Avoid:            make(map[domain.Category]bool),
		Favor:            make(map[domain.Category]bool),
		recentMarkets:    make(map[string]time.Time),
	}
}

// resetDaily limpia los contadores del día preservando las señales del
// Learner y el registro de mercados recientes (la ventana de repetición
// de 24h cruza la medianoche).
func (s *EngineState) resetDaily(day time.Time) {
	s.Day = day
	s.CommittedToday = 0
	s.PerCategoryToday = make(map[domain.Category]int)
}

// pruneRecent olvida mercados fuera de la ventana de repetición.
func (s *EngineState) pruneRecent(now time.Time, window time.Duration) {
	for key, at := range s.recentMarkets {
		if now.Sub(at) > window {
			delete(s.recentMarkets, key)
		}
	}
}
