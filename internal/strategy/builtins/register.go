package builtins

import "meridian/internal/strategy"

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register("buy_and_hold", func(p strategy.Params) (strategy.Strategy, error) {
		return NewBuyAndHold(p.Symbols)
	})
	r.Register("sma_cross", func(p strategy.Params) (strategy.Strategy, error) {
		return NewSMACross(p.Symbols, p.ShortWindow, p.LongWindow)
	})
}

// Default returns a registry holding every builtin strategy.
func Default() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
