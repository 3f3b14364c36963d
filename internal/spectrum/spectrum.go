// Package spectrum turns stereo PCM into per-channel FFT magnitudes for the analyzer pipeline.
package spectrum

import (
	"errors"
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/guidoenr/bandscope/internal/analyzer"
	"github.com/guidoenr/bandscope/internal/params"
)

// ErrNotEnoughSamples is returned when the PCM source cannot supply a full frame window.
var ErrNotEnoughSamples = errors.New("spectrum: not enough samples")

// PCM supplies the most recent stereo frames of an audio stream.
type PCM interface {
	SampleRate() float64
	// Frames returns the latest n frames, oldest first, one slice per channel.
	Frames(n int) (left, right []float64, err error)
}

type windowKey struct {
	kind params.Window
	size int
}

type windowTable struct {
	coeffs []float64
	gain   float64
}

// Analyzer computes windowed magnitude spectra on demand. It is not safe for concurrent use.
type Analyzer struct {
	pcm     PCM
	windows map[windowKey]windowTable
	buffer  []float64
	mags    [2][]float64
}

// New wraps a PCM source.
func New(pcm PCM) *Analyzer {
	return &Analyzer{
		pcm:     pcm,
		windows: make(map[windowKey]windowTable),
	}
}

// SampleRate reports the rate of the underlying PCM stream.
func (a *Analyzer) SampleRate() float64 {
	return a.pcm.SampleRate()
}

// Spectrum returns n magnitudes for channel ch. Bin k is centered on
// k*sampleRate/n; a full-scale sine lands at roughly its amplitude.
// The returned slice is reused by the next call for the same channel.
func (a *Analyzer) Spectrum(ch analyzer.Channel, w params.Window, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("spectrum size %d: %w", n, ErrNotEnoughSamples)
	}
	left, right, err := a.pcm.Frames(n)
	if err != nil {
		return nil, err
	}
	samples := left
	if ch == analyzer.ChannelRight {
		samples = right
	}
	if len(samples) < n {
		return nil, fmt.Errorf("%w: have %d frames, need %d", ErrNotEnoughSamples, len(samples), n)
	}

	table := a.window(w, n)
	slot := 0
	if ch == analyzer.ChannelRight {
		slot = 1
	}
	if cap(a.buffer) < n {
		a.buffer = make([]float64, n)
	}
	if cap(a.mags[slot]) < n {
		a.mags[slot] = make([]float64, n)
	}
	buffer := a.buffer[:n]
	mags := a.mags[slot][:n]
	for i := range buffer {
		buffer[i] = samples[i] * table.coeffs[i]
	}

	out := fft.FFTReal(buffer)
	scale := 0.0
	if table.gain > 0 {
		scale = 2 / table.gain
	}
	for i := range mags {
		mags[i] = cmplx.Abs(out[i]) * scale
	}
	return mags, nil
}

func (a *Analyzer) window(w params.Window, n int) windowTable {
	key := windowKey{kind: w, size: n}
	if table, ok := a.windows[key]; ok {
		return table
	}
	coeffs := Coefficients(w, n)
	table := windowTable{coeffs: coeffs, gain: floats.Sum(coeffs)}
	a.windows[key] = table
	return table
}
