package analyzer

import (
	"math"

	"github.com/guidoenr/bandscope/internal/series"
)

// EpsilonFloor is the lowest value a decaying buffer can reach.
const EpsilonFloor = 0.0001

// Smoother turns raw band values into buffered ones: a new peak is taken
// immediately, a falling signal is followed by a decrement that grows every
// tick until the raw value catches up again.
type Smoother struct {
	bufLeft   *series.Bounded[float64]
	bufRight  *series.Bounded[float64]
	rateLeft  *series.Bounded[float64]
	rateRight *series.Bounded[float64]
	base      float64
}

// NewSmoother allocates state for up to maxBands bands starting at base
// decrease rate. A non-finite base starts at zero.
func NewSmoother(maxBands int, base float64) *Smoother {
	if !finite(base) {
		base = 0
	}
	return &Smoother{
		bufLeft:   series.NewBounded(maxBands, 0.0),
		bufRight:  series.NewBounded(maxBands, 0.0),
		rateLeft:  series.NewBounded(maxBands, base),
		rateRight: series.NewBounded(maxBands, base),
		base:      base,
	}
}

// Resize changes the band count. New bands start with an empty buffer and the base rate.
func (s *Smoother) Resize(n int) error {
	if !s.bufLeft.IsResizeSafe(n) {
		return s.bufLeft.Resize(n)
	}
	for _, b := range []*series.Bounded[float64]{s.bufLeft, s.bufRight, s.rateLeft, s.rateRight} {
		if err := b.Resize(n); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the current band count.
func (s *Smoother) Len() int { return s.bufLeft.Len() }

// Base returns the decrease rate applied at the start of a decline.
func (s *Smoother) Base() float64 { return s.base }

// SetBase switches to a new base rate. Bands still sitting at the old base
// move to the new one; bands already decaying faster keep their rate.
// Non-finite bases are ignored and non-finite rates are reset.
func (s *Smoother) SetBase(base float64) {
	if base == s.base || !finite(base) {
		return
	}
	old := s.base
	for _, rates := range []*series.Bounded[float64]{s.rateLeft, s.rateRight} {
		for i := 0; i < rates.Len(); i++ {
			if r := rates.At(i); r == old || !finite(r) {
				rates.Set(i, base)
			}
		}
		rates.SetDefault(base)
	}
	s.base = base
}

// Update advances every band by one tick of dt seconds.
func (s *Smoother) Update(rawLeft, rawRight *series.Bounded[float64], accel, dt float64) {
	s.updateChannel(rawLeft, s.bufLeft, s.rateLeft, accel, dt)
	s.updateChannel(rawRight, s.bufRight, s.rateRight, accel, dt)
}

func (s *Smoother) updateChannel(raw, buf, rate *series.Bounded[float64], accel, dt float64) {
	n := min(raw.Len(), buf.Len())
	for i := 0; i < n; i++ {
		b, r := Step(raw.At(i), buf.At(i), rate.At(i), s.base, accel, dt)
		buf.Set(i, b)
		rate.Set(i, r)
	}
}

// Left returns the buffered left band values.
func (s *Smoother) Left() *series.Bounded[float64] { return s.bufLeft }

// Right returns the buffered right band values.
func (s *Smoother) Right() *series.Bounded[float64] { return s.bufRight }

// Rates returns the current left and right decrease rates.
func (s *Smoother) Rates() (left, right *series.Bounded[float64]) {
	return s.rateLeft, s.rateRight
}

// Step computes one tick for a single band and channel. A non-finite buffer
// or rate restarts the band from the floor at the base rate.
func Step(raw, buffered, rate, base, accel, dt float64) (newBuffered, newRate float64) {
	if !finite(buffered) || !finite(rate) {
		buffered, rate = EpsilonFloor, base
	}
	if raw >= buffered {
		return raw, base
	}
	newBuffered = buffered - rate
	if newBuffered < EpsilonFloor {
		newBuffered = EpsilonFloor
	}
	return newBuffered, rate * (1 + accel*dt)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
