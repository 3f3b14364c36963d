package analyzer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/guidoenr/bandscope/internal/params"
	"github.com/guidoenr/bandscope/internal/series"
)

// maxBinIndex keeps float to int conversions well defined for absurd band edges.
const maxBinIndex = 1 << 30

// Aggregator averages contiguous bin ranges into one value per band and channel.
type Aggregator struct {
	left  *series.Bounded[float64]
	right *series.Bounded[float64]
}

// NewAggregator allocates band storage for up to maxBands bands.
func NewAggregator(maxBands int) *Aggregator {
	return &Aggregator{
		left:  series.NewBounded(maxBands, 0.0),
		right: series.NewBounded(maxBands, 0.0),
	}
}

// Resize changes the number of bands produced per tick.
func (a *Aggregator) Resize(n int) error {
	if !a.left.IsResizeSafe(n) {
		return a.left.Resize(n)
	}
	if err := a.left.Resize(n); err != nil {
		return err
	}
	return a.right.Resize(n)
}

// Len returns the current band count.
func (a *Aggregator) Len() int { return a.left.Len() }

// Left returns the raw left band values.
func (a *Aggregator) Left() *series.Bounded[float64] { return a.left }

// Right returns the raw right band values.
func (a *Aggregator) Right() *series.Bounded[float64] { return a.right }

// Aggregate recomputes every band from the current bins. Bands beyond Len() are ignored.
func (a *Aggregator) Aggregate(bins *series.Stereo, bands []params.Band) {
	left := bins.Left().Values()
	right := bins.Right().Values()
	n := min(len(bands), a.left.Len())
	for i := 0; i < n; i++ {
		start, end, ok := BinRange(bands[i])
		if !ok {
			a.left.Set(i, 0)
			a.right.Set(i, 0)
			continue
		}
		a.left.Set(i, Average(left, start, end))
		a.right.Set(i, Average(right, start, end))
	}
}

// BinRange maps a band onto inclusive bin indices. ok is false when the band
// has no usable resolution.
func BinRange(b params.Band) (start, end int, ok bool) {
	if !(b.Resolution > 0) || math.IsInf(b.Resolution, 0) {
		return 0, -1, false
	}
	start = toIndex(math.Ceil(b.Min / b.Resolution))
	end = toIndex(math.Floor(b.Max / b.Resolution))
	return start, end, true
}

// Average returns the mean of samples[start..end] inclusive. Indices are
// clamped to the slice and an empty range yields 0.
func Average(samples []float64, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	if end > len(samples)-1 {
		end = len(samples) - 1
	}
	if end < start {
		return 0
	}
	return floats.Sum(samples[start:end+1]) / float64(end-start+1)
}

func toIndex(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > maxBinIndex:
		return maxBinIndex
	case v < -maxBinIndex:
		return -maxBinIndex
	}
	return int(v)
}
