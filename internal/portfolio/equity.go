package portfolio

import (
	"maps"
	"time"
)

// EquityPoint is one row of the equity curve.
type EquityPoint struct {
	Time       time.Time
	Total      float64
	Cash       float64
	Commission float64
	Holdings   map[string]float64
	Returns    float64 // Total[t]/Total[t-1] - 1; zero for the first point
	Growth     float64 // product of (1 + Returns) so far; 1.0 for the first point
}

// EquityCurve derives the equity curve from the holdings history.
func (p *Portfolio) EquityCurve() ([]EquityPoint, error) {
	return Curve(p.holdingsHistory)
}

// Curve derives an equity curve from any holdings history.
func Curve(history []Holdings) ([]EquityPoint, error) {
	if len(history) < 2 {
		return nil, ErrInsufficientHistory
	}

	curve := make([]EquityPoint, len(history))
	growth := 1.0
	for i, h := range history {
		var ret float64
		if i > 0 {
			if prev := history[i-1].Total; prev != 0 {
				ret = h.Total/prev - 1
			}
		}
		growth *= 1 + ret
		curve[i] = EquityPoint{
			Time:       h.Time,
			Total:      h.Total,
			Cash:       h.Cash,
			Commission: h.Commission,
			Holdings:   maps.Clone(h.Value),
			Returns:    ret,
			Growth:     growth,
		}
	}
	return curve, nil
}

// Returns extracts the Returns column.
func Returns(curve []EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, pt := range curve {
		out[i] = pt.Returns
	}
	return out
}

// Growth extracts the Growth column.
func Growth(curve []EquityPoint) []float64 {
	out := make([]float64, len(curve))
	for i, pt := range curve {
		out[i] = pt.Growth
	}
	return out
}
