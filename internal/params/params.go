package params

import (
	"math"
	"strings"
)

const (
	// MaxFFTSize bounds the number of bins per channel.
	MaxFFTSize = 8192
	// MinFFTSize is the smallest transform the configuration will round to.
	MinFFTSize = 64
	// MaxBands bounds the number of frequency bands.
	MaxBands = 100
)

// Window selects the weighting applied to samples before the transform.
type Window int

const (
	WindowRectangular Window = iota
	WindowTriangle
	WindowHamming
	WindowHanning
	WindowBlackman
	WindowBlackmanHarris
)

var windowNames = []string{"rectangular", "triangle", "hamming", "hanning", "blackman", "blackmanharris"}

// WindowNames returns the supported window identifiers in enum order.
func WindowNames() []string {
	out := make([]string, len(windowNames))
	copy(out, windowNames)
	return out
}

func (w Window) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return "unknown"
	}
	return windowNames[w]
}

// Next cycles through the window types.
func (w Window) Next() Window {
	return Window((int(w) + 1) % len(windowNames))
}

// ParseWindow maps a name to a Window, falling back to Hanning.
func ParseWindow(name string) Window {
	w, _ := LookupWindow(name)
	return w
}

// LookupWindow maps a name to a Window and reports whether the name is known.
func LookupWindow(name string) (Window, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rectangular", "rect", "none":
		return WindowRectangular, true
	case "triangle", "bartlett":
		return WindowTriangle, true
	case "hamming":
		return WindowHamming, true
	case "hanning", "hann":
		return WindowHanning, true
	case "blackman":
		return WindowBlackman, true
	case "blackmanharris", "blackman-harris":
		return WindowBlackmanHarris, true
	default:
		return WindowHanning, false
	}
}

// MarshalText encodes the window by name.
func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes a window name.
func (w *Window) UnmarshalText(text []byte) error {
	*w = ParseWindow(string(text))
	return nil
}

// Band is a frequency range in Hz together with the bin width it is resolved against.
type Band struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Resolution float64 `json:"-"`
}

// SetResolution records the bin width and repairs unset bounds.
func (b *Band) SetResolution(res float64) {
	if math.IsNaN(b.Min) {
		b.Min = 100
	}
	if math.IsNaN(b.Max) {
		b.Max = 1000
	}
	b.Resolution = res
}

// Parameters is the configuration the pipeline reads at the start of every tick.
type Parameters struct {
	SampleRate           float64 `json:"sampleRate"`
	FFTSize              int     `json:"fftSize"`
	Window               Window  `json:"window"`
	Bands                []Band  `json:"bands"`
	BufferEnabled        bool    `json:"bufferEnabled"`
	DecreaseStart        float64 `json:"decreaseStart"`
	DecreaseAcceleration float64 `json:"decreaseAcceleration"`
}

// Defaults returns the stock configuration: 512 bins, Hanning window, 8 bands.
func Defaults() Parameters {
	p := Parameters{
		SampleRate:           48_000,
		FFTSize:              512,
		Window:               WindowHanning,
		BufferEnabled:        true,
		DecreaseStart:        0.05,
		DecreaseAcceleration: 0.2,
	}
	p.SetNumBands(8)
	p.UpdateResolution()
	return p
}

// DefaultBands splits 0 Hz to 16 kHz into n contiguous ranges, octave spaced above 60 Hz.
func DefaultBands(n int) []Band {
	if n <= 0 {
		return nil
	}
	const (
		lowEdge  = 60.0
		highEdge = 16_000.0
	)
	bands := make([]Band, n)
	if n == 1 {
		bands[0] = Band{Min: 0, Max: highEdge}
		return bands
	}
	ratio := math.Pow(highEdge/lowEdge, 1/float64(n-1))
	lo := 0.0
	hi := lowEdge
	for i := range bands {
		bands[i] = Band{Min: lo, Max: hi}
		lo = hi
		hi *= ratio
	}
	bands[n-1].Max = highEdge
	return bands
}

// Resolution returns the bin width in Hz, or 0 when the transform size is unset.
func (p Parameters) Resolution() float64 {
	if p.FFTSize <= 0 || p.SampleRate <= 0 {
		return 0
	}
	return p.SampleRate / float64(p.FFTSize)
}

// UpdateResolution pushes the current bin width into every band.
func (p *Parameters) UpdateResolution() {
	res := p.Resolution()
	for i := range p.Bands {
		p.Bands[i].SetResolution(res)
	}
}

// SetFFTSize stores the nearest power of two within [MinFFTSize, MaxFFTSize].
func (p *Parameters) SetFFTSize(n int) {
	p.FFTSize = clampInt(nearestPow2(n), MinFFTSize, MaxFFTSize)
	p.UpdateResolution()
}

// SetSampleRate updates the sample rate and the derived resolution.
func (p *Parameters) SetSampleRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.SampleRate = rate
	p.UpdateResolution()
}

// SetNumBands resizes the band list. Existing ranges are kept; new bands
// are taken from DefaultBands(n) at the same index.
func (p *Parameters) SetNumBands(n int) {
	n = clampInt(n, 0, MaxBands)
	if n == len(p.Bands) {
		return
	}
	if n < len(p.Bands) {
		p.Bands = p.Bands[:n:n]
		return
	}
	defaults := DefaultBands(n)
	bands := make([]Band, n)
	copy(bands, p.Bands)
	copy(bands[len(p.Bands):], defaults[len(p.Bands):])
	p.Bands = bands
	p.UpdateResolution()
}

// Clone returns a copy that shares no memory with p.
func (p Parameters) Clone() Parameters {
	out := p
	out.Bands = append([]Band(nil), p.Bands...)
	return out
}

// Normalize repairs values a hand-edited file or request could break.
func (p *Parameters) Normalize() {
	if p.SampleRate <= 0 {
		p.SampleRate = 48_000
	}
	if p.FFTSize <= 0 {
		p.FFTSize = 512
	}
	p.SetFFTSize(p.FFTSize)
	if len(p.Bands) > MaxBands {
		p.Bands = p.Bands[:MaxBands]
	}
	for i := range p.Bands {
		if p.Bands[i].Min > p.Bands[i].Max {
			p.Bands[i].Min, p.Bands[i].Max = p.Bands[i].Max, p.Bands[i].Min
		}
	}
	if !finite(p.DecreaseStart) {
		p.DecreaseStart = Defaults().DecreaseStart
	}
	if p.DecreaseStart < 0 {
		p.DecreaseStart = 0
	}
	if !finite(p.DecreaseAcceleration) {
		p.DecreaseAcceleration = Defaults().DecreaseAcceleration
	}
	if p.DecreaseAcceleration < 0 {
		p.DecreaseAcceleration = 0
	}
	p.UpdateResolution()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// RoundToNearestMultiple snaps v to the closest multiple of step.
func RoundToNearestMultiple(step, v float64) float64 {
	if step > math.SmallestNonzeroFloat32 {
		return math.Round(v/step) * step
	}
	return v
}

func nearestPow2(n int) int {
	if n <= 1 {
		return 1
	}
	upper := nextPow2(n)
	lower := upper >> 1
	if n-lower < upper-n {
		return lower
	}
	return upper
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
