package portfolio

import (
	"math"

	"meridian/internal/domain"
	"meridian/internal/event"
)

// Sizer turns a signal into at most one order given the current signed
// position. Implementations must never re-enter a position already held in
// the same direction and never exit a flat position.
type Sizer interface {
	Size(current int64, sig event.Signal) (order event.Order, ok bool, err error)
}

// DefaultLot is the FixedLot size used when none is configured.
const DefaultLot = 100

// Compile-time interface check.
var _ Sizer = FixedLot{}

// FixedLot enters with floor(Lot × strength) shares and exits the whole
// position:
//
//	FLAT  + LONG  -> BUY  floor(Lot × strength)
//	FLAT  + SHORT -> SELL floor(Lot × strength)
//	LONG  + EXIT  -> SELL |qty|
//	SHORT + EXIT  -> BUY  |qty|
//
// Every other combination, and a computed quantity of zero, yields nothing.
type FixedLot struct {
	Lot int64
}

func (f FixedLot) Size(current int64, sig event.Signal) (event.Order, bool, error) {
	lot := f.Lot
	if lot <= 0 {
		lot = DefaultLot
	}

	var (
		qty  int64
		side domain.Side
	)
	switch state := domain.StateOf(current); {
	case state == domain.PositionFlat && sig.Direction == domain.DirectionLong:
		qty, side = int64(math.Floor(float64(lot)*sig.Strength)), domain.SideBuy
	case state == domain.PositionFlat && sig.Direction == domain.DirectionShort:
		qty, side = int64(math.Floor(float64(lot)*sig.Strength)), domain.SideSell
	case state == domain.PositionLong && sig.Direction == domain.DirectionExit:
		qty, side = current, domain.SideSell
	case state == domain.PositionShort && sig.Direction == domain.DirectionExit:
		qty, side = -current, domain.SideBuy
	default:
		return event.Order{}, false, nil
	}
	if qty <= 0 {
		return event.Order{}, false, nil
	}

	o, err := event.NewOrder(sig.Symbol, qty, side)
	if err != nil {
		return event.Order{}, false, err
	}
	return o, true, nil
}
