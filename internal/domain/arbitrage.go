package domain

import "fmt"

// ArbitragePair es un par de mercados del mismo cluster, en venues distintos,
// cuyas probabilidades divergen lo suficiente para ser tradeables.
type ArbitragePair struct {
	Topic string

	// Buy es el lado barato (probabilidad menor), Sell el lado rico.
	Buy  Market
	Sell Market

	Spread   float64 // Sell.YesPrice - Buy.YesPrice, siempre > 0
	Strategy string  // descripción legible de la operación
}

// NewArbitragePair construye el par ordenando cheap/rich y generando la estrategia.
func NewArbitragePair(topic string, a, b Market) ArbitragePair {
	buy, sell := a, b
	if buy.YesPrice > sell.YesPrice {
		buy, sell = sell, buy
	}
	return ArbitragePair{
		Topic:  topic,
		Buy:    buy,
		Sell:   sell,
		Spread: sell.YesPrice - buy.YesPrice,
		Strategy: fmt.Sprintf("buy YES @ %.2f on %s, sell/short YES @ %.2f on %s",
			buy.YesPrice, buy.Venue, sell.YesPrice, sell.Venue),
	}
}

// SpreadPoints devuelve el spread en puntos porcentuales.
func (p ArbitragePair) SpreadPoints() float64 {
	return p.Spread * 100
}
