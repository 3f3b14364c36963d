// Package clip decodes whole audio files into memory so they can be scanned
// frame by frame as a spectrum source.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedFormat is returned for file types without a registered decoder.
	ErrUnsupportedFormat = errors.New("clip: unsupported format")
	// ErrEmptyClip is returned when a file decodes to zero frames.
	ErrEmptyClip = errors.New("clip: no audio frames")
)

// Clip holds decoded stereo audio normalized to [-1, 1].
type Clip struct {
	Name       string
	SampleRate float64
	Left       []float64
	Right      []float64
}

// Frames returns the clip length in frames.
func (c *Clip) Frames() int { return len(c.Left) }

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Left)) / c.SampleRate
}

// Decoder builds a Clip from an encoded stream.
type Decoder interface {
	Decode(r io.ReadSeeker) (*Clip, error)
}

// Registry maps format keys (file extensions without the dot) to decoders.
type Registry struct {
	mu     sync.Mutex
	codecs map[string]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

// DefaultRegistry knows wav, aiff, mp3 and ogg.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", wavDecoder{})
	r.Register("wave", wavDecoder{})
	r.Register("aif", aiffDecoder{})
	r.Register("aiff", aiffDecoder{})
	r.Register("mp3", mp3Decoder{})
	r.Register("ogg", vorbisDecoder{})
	return r
}

// Register adds or replaces the decoder for format.
func (r *Registry) Register(format string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[strings.ToLower(format)] = d
}

// Get looks up the decoder for format.
func (r *Registry) Get(format string) (Decoder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.codecs[strings.ToLower(format)]
	return d, ok
}

// Load opens path and decodes it with the decoder registered for its extension.
func (r *Registry) Load(path string) (*Clip, error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	dec, ok := r.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if c.Frames() == 0 {
		return nil, fmt.Errorf("decode %s: %w", path, ErrEmptyClip)
	}
	c.Name = filepath.Base(path)
	return c, nil
}

// Load decodes path using DefaultRegistry.
func Load(path string) (*Clip, error) {
	return DefaultRegistry().Load(path)
}

// fromInterleaved splits interleaved samples into left/right. Mono feeds both
// channels; channels past the second are ignored.
func fromInterleaved(samples []float64, channels int, rate float64) *Clip {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	c := &Clip{
		SampleRate: rate,
		Left:       make([]float64, frames),
		Right:      make([]float64, frames),
	}
	for f := 0; f < frames; f++ {
		base := f * channels
		c.Left[f] = samples[base]
		if channels > 1 {
			c.Right[f] = samples[base+1]
		} else {
			c.Right[f] = samples[base]
		}
	}
	return c
}
