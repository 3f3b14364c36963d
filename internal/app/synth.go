package app

import (
	"fmt"
	"math"
	"sync"

	"github.com/guidoenr/bandscope/internal/spectrum"
)

const synthSampleRate = 48_000.0

// synthSource generates a drifting three-voice stereo signal in place of a
// capture device. Frames is a pure function of the clock, so the left and
// right spectrum requests of one tick see the same audio.
type synthSource struct {
	mu    sync.Mutex
	rate  float64
	clock float64
	left  []float64
	right []float64
}

func newSynthSource() *synthSource {
	return &synthSource{rate: synthSampleRate}
}

func (s *synthSource) SampleRate() float64 { return s.rate }

// Advance moves the clock forward by delta seconds.
func (s *synthSource) Advance(delta float64) {
	if delta <= 0 {
		return
	}
	s.mu.Lock()
	s.clock += delta
	s.mu.Unlock()
}

func (s *synthSource) Frames(n int) ([]float64, []float64, error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("frames %d: %w", n, spectrum.ErrNotEnoughSamples)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap(s.left) < n {
		s.left = make([]float64, n)
		s.right = make([]float64, n)
	}
	left, right := s.left[:n], s.right[:n]

	end := int64(s.clock * s.rate)
	for i := 0; i < n; i++ {
		idx := end - int64(n-i)
		t := float64(idx) / s.rate

		bass := clamp01(0.5 + 0.5*math.Sin(t*0.7))
		mid := clamp01(0.4 + 0.4*math.Sin(t*1.2+0.5))
		treble := clamp01(0.3 + 0.3*math.Sin(t*2.1+1.0))
		noise := hashNoise(idx)*2 - 1

		low := math.Sin(2 * math.Pi * 80 * t)
		body := math.Sin(2 * math.Pi * 440 * t)
		air := math.Sin(2 * math.Pi * 3_500 * t)

		left[i] = 0.6*bass*low + 0.3*mid*body + 0.1*treble*air + 0.02*noise
		right[i] = 0.5*bass*low + 0.35*mid*body + 0.15*treble*air + 0.02*noise
	}
	return left, right, nil
}

// hashNoise maps a sample index to a repeatable value in [0, 1).
func hashNoise(idx int64) float64 {
	v := math.Sin(float64(idx)*127.1) * 43758.5453123
	return v - math.Floor(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
