// Package performance computes summary statistics over an equity curve.
package performance

import (
	"math"
	"time"

	"meridian/internal/portfolio"
)

// DefaultPeriods is the number of daily bars in a trading year.
const DefaultPeriods = 252

// Summary is the headline result of a run.
type Summary struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	InitialEquity    float64   `json:"initial_equity"`
	FinalEquity      float64   `json:"final_equity"`
	TotalReturn      float64   `json:"total_return"`
	Sharpe           float64   `json:"sharpe"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	DrawdownDuration int       `json:"drawdown_duration"`
	Commission       float64   `json:"commission"`
}

// Sharpe returns the annualised Sharpe ratio of per-period returns with a
// zero risk-free rate: sqrt(periods) * mean / stddev. It is zero when the
// returns have no dispersion.
func Sharpe(returns []float64, periods int) float64 {
	if len(returns) < 2 {
		return 0
	}
	if periods <= 0 {
		periods = DefaultPeriods
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return math.Sqrt(float64(periods)) * mean / std
}

// Drawdowns walks a growth series and returns the maximum drawdown as a
// fraction of the running peak, the longest number of periods spent below
// a peak, and the drawdown at every point.
func Drawdowns(growth []float64) (maxDD float64, maxDuration int, series []float64) {
	series = make([]float64, len(growth))
	var (
		peak     float64
		duration int
	)
	for i, g := range growth {
		if i == 0 || g >= peak {
			peak = g
			duration = 0
		} else {
			duration++
		}
		if peak > 0 {
			series[i] = (peak - g) / peak
		}
		maxDD = math.Max(maxDD, series[i])
		if duration > maxDuration {
			maxDuration = duration
		}
	}
	return maxDD, maxDuration, series
}

// Summarize computes a Summary over curve. An empty curve yields the zero
// Summary.
func Summarize(curve []portfolio.EquityPoint, periods int) Summary {
	if len(curve) == 0 {
		return Summary{}
	}
	first, last := curve[0], curve[len(curve)-1]

	maxDD, duration, _ := Drawdowns(portfolio.Growth(curve))
	s := Summary{
		Start:            first.Time,
		End:              last.Time,
		InitialEquity:    first.Total,
		FinalEquity:      last.Total,
		Sharpe:           Sharpe(portfolio.Returns(curve)[1:], periods),
		MaxDrawdown:      maxDD,
		DrawdownDuration: duration,
		Commission:       last.Commission,
	}
	if first.Total != 0 {
		s.TotalReturn = last.Total/first.Total - 1
	}
	return s
}
