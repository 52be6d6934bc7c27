package domain

import (
	"math"
	"strings"
)

// Cluster agrupa mercados de distintos venues que representan la misma
// pregunta real. Se recalcula en cada ciclo de scan — la membresía depende
// del umbral de similitud y no es estable entre ciclos.
type Cluster struct {
	// Topic es la firma normalizada del tópico (el título del seed en minúsculas).
	Topic   string
	Seed    Market
	Markets []Market
}

// NewCluster crea un cluster con el mercado dado como seed.
func NewCluster(seed Market) Cluster {
	return Cluster{
		Topic:   strings.ToLower(strings.TrimSpace(seed.Question)),
		Seed:    seed,
		Markets: []Market{seed},
	}
}

// Size devuelve el número de mercados del cluster. Un cluster de tamaño 1 es válido.
func (c Cluster) Size() int {
	return len(c.Markets)
}

// TotalVolume suma el volumen de todos los miembros.
func (c Cluster) TotalVolume() float64 {
	total := 0.0
	for _, m := range c.Markets {
		total += m.Volume
	}
	return total
}

// DistinctVenues cuenta los venues distintos representados en el cluster.
func (c Cluster) DistinctVenues() int {
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		seen[m.Venue] = true
	}
	return len(seen)
}

// QualityScore rankea clusters al elegir el mejor para una consulta:
// venues distintos × log(1 + volumen total). Más venues y más volumen ganan.
func (c Cluster) QualityScore() float64 {
	return float64(c.DistinctVenues()) * math.Log(1+c.TotalVolume())
}
