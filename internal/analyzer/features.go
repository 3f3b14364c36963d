package analyzer

// Snapshot is the published output of one tick. Its slices alias pipeline
// storage and stay valid only until the next Tick; use Clone to keep them.
type Snapshot struct {
	Tick          uint64    `json:"tick"`
	Resolution    float64   `json:"resolution"`
	BufferEnabled bool      `json:"bufferEnabled"`
	BinsLeft      []float64 `json:"binsLeft,omitempty"`
	BinsRight     []float64 `json:"binsRight,omitempty"`
	RawLeft       []float64 `json:"rawLeft"`
	RawRight      []float64 `json:"rawRight"`
	BufferedLeft  []float64 `json:"bufferedLeft"`
	BufferedRight []float64 `json:"bufferedRight"`
}

// Bands returns the number of bands in the snapshot.
func (s Snapshot) Bands() int {
	return min(len(s.RawLeft), len(s.RawRight), len(s.BufferedLeft), len(s.BufferedRight))
}

// Mono returns the channel average of band i, buffered when buffering is enabled.
func (s Snapshot) Mono(i int) float64 {
	if i < 0 || i >= s.Bands() {
		return 0
	}
	if s.BufferEnabled {
		return (s.BufferedLeft[i] + s.BufferedRight[i]) / 2
	}
	return (s.RawLeft[i] + s.RawRight[i]) / 2
}

// MonoBands returns Mono for every band.
func (s Snapshot) MonoBands() []float64 {
	out := make([]float64, s.Bands())
	for i := range out {
		out[i] = s.Mono(i)
	}
	return out
}

// Clone copies every slice so the result survives later ticks.
func (s Snapshot) Clone() Snapshot {
	s.BinsLeft = cloneFloats(s.BinsLeft)
	s.BinsRight = cloneFloats(s.BinsRight)
	s.RawLeft = cloneFloats(s.RawLeft)
	s.RawRight = cloneFloats(s.RawRight)
	s.BufferedLeft = cloneFloats(s.BufferedLeft)
	s.BufferedRight = cloneFloats(s.BufferedRight)
	return s
}

// WithoutBins drops the per-bin views, useful before serializing.
func (s Snapshot) WithoutBins() Snapshot {
	s.BinsLeft = nil
	s.BinsRight = nil
	return s
}

// Gate returns a copy with band values at or below floor zeroed and the rest
// rescaled into [0, 1] so weak signals are ignored.
func (s Snapshot) Gate(floor float64) Snapshot {
	out := s.Clone()
	if floor <= 0 {
		return out
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clampFloat((v-floor)/(1.0-floor), 0, 1)
	}
	for _, values := range [][]float64{out.RawLeft, out.RawRight, out.BufferedLeft, out.BufferedRight} {
		for i, v := range values {
			values[i] = gate(v)
		}
	}
	return out
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
