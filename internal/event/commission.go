package event

import "math"

// Interactive Brokers US API fixed-rate schedule.
const (
	ibMinPerOrder   = 1.30
	ibSmallRate     = 0.013
	ibLargeRate     = 0.008
	ibSmallMaxQty   = 500
	ibMaxPctOfValue = 0.005
)

// IBCommission returns the commission for trading qty shares at price:
// a per-share rate (0.013 up to 500 shares, 0.008 above) with a 1.30
// minimum, capped at 0.5% of the trade value.
func IBCommission(qty int64, price float64) float64 {
	q := float64(qty)
	rate := ibLargeRate
	if qty <= ibSmallMaxQty {
		rate = ibSmallRate
	}
	cost := math.Max(ibMinPerOrder, rate*q)
	return math.Min(cost, ibMaxPctOfValue*q*price)
}
