package spectrum

import (
	"github.com/RyanBlaney/sonido-sonar/algorithms/windowing"
	"github.com/mjibson/go-dsp/window"

	"github.com/guidoenr/bandscope/internal/params"
)

// Coefficients returns the n-point weighting table for w.
func Coefficients(w params.Window, n int) []float64 {
	if n <= 0 {
		return nil
	}
	switch w {
	case params.WindowRectangular:
		return window.Rectangular(n)
	case params.WindowTriangle:
		return window.Bartlett(n)
	case params.WindowHamming:
		return window.Hamming(n)
	case params.WindowBlackman:
		return window.Blackman(n)
	case params.WindowBlackmanHarris:
		if n == 1 {
			return []float64{1}
		}
		return windowing.NewBlackmanHarris(n, true).GetCoefficients()
	default:
		return window.Hann(n)
	}
}
