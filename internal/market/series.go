package market

import (
	"sort"

	"meridian/internal/domain"
)

// Series yields one symbol's bars in timestamp order. Next reports the end
// of data with ok == false.
type Series struct {
	bars []domain.Bar
	pos  int
}

// NewSeries copies bars and sorts the copy by timestamp.
func NewSeries(bars []domain.Bar) *Series {
	sorted := append([]domain.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &Series{bars: sorted}
}

// Next returns the next bar and advances.
func (s *Series) Next() (domain.Bar, bool) {
	b, ok := s.Peek()
	if ok {
		s.pos++
	}
	return b, ok
}

// Peek returns the next bar without advancing.
func (s *Series) Peek() (domain.Bar, bool) {
	if s.pos >= len(s.bars) {
		return domain.Bar{}, false
	}
	return s.bars[s.pos], true
}

// Remaining returns the number of bars not yet returned by Next.
func (s *Series) Remaining() int {
	return len(s.bars) - s.pos
}
