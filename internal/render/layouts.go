package render

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/guidoenr/bandscope/internal/analyzer"
)

// levels are per-column bar heights in [0, 1]. A nil bottom means bars grow
// from the floor; otherwise top grows up and bottom grows down from the middle.
type levels struct {
	top    []float64
	bottom []float64
}

type layoutFunc func(snap analyzer.Snapshot, columns int) levels

var layoutRegistry = map[string]layoutFunc{
	"bands":  layoutBands,
	"mirror": layoutMirror,
	"bins":   layoutBins,
}

// LayoutNames returns the available layout identifiers.
func LayoutNames() []string {
	names := make([]string, 0, len(layoutRegistry))
	for name := range layoutRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextLayout returns the layout after name in LayoutNames order.
func NextLayout(name string) string {
	names := LayoutNames()
	for i, n := range names {
		if n == name {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

// layoutBands draws one bar per band at the channel average.
func layoutBands(snap analyzer.Snapshot, columns int) levels {
	return levels{top: spread(snap.MonoBands(), columns)}
}

// layoutMirror draws the left channel above the center line and the right below.
func layoutMirror(snap analyzer.Snapshot, columns int) levels {
	left, right := snap.RawLeft, snap.RawRight
	if snap.BufferEnabled {
		left, right = snap.BufferedLeft, snap.BufferedRight
	}
	n := snap.Bands()
	return levels{
		top:    spread(left[:n], columns),
		bottom: spread(right[:n], columns),
	}
}

// layoutBins draws the left channel bins below Nyquist, peak normalized.
func layoutBins(snap analyzer.Snapshot, columns int) levels {
	bins := snap.BinsLeft
	if len(bins) > 1 {
		bins = bins[:len(bins)/2]
	}
	out := make([]float64, columns)
	if len(bins) == 0 || columns <= 0 {
		return levels{top: out}
	}
	for x := range out {
		start := x * len(bins) / columns
		end := (x + 1) * len(bins) / columns
		if end <= start {
			end = start + 1
		}
		out[x] = floats.Max(bins[start:end])
	}
	if peak := floats.Max(out); peak > 1 {
		floats.Scale(1/peak, out)
	}
	return levels{top: out}
}

// spread stretches values across columns, leaving a one column gap between
// bars when each bar is at least three columns wide.
func spread(values []float64, columns int) []float64 {
	out := make([]float64, columns)
	if len(values) == 0 || columns <= 0 {
		return out
	}
	barWidth := columns / len(values)
	if barWidth < 1 {
		for x := range out {
			out[x] = clamp01(values[x*len(values)/columns])
		}
		return out
	}
	for x := range out {
		i := x / barWidth
		if i >= len(values) {
			break
		}
		if barWidth > 2 && x%barWidth == barWidth-1 {
			continue
		}
		out[x] = clamp01(values[i])
	}
	return out
}
