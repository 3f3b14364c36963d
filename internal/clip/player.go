package clip

import (
	"fmt"
	"math"
	"sync"

	"github.com/guidoenr/bandscope/internal/spectrum"
)

// Player scans a Clip in real time, looping at the end, and serves the frames
// behind its cursor as a spectrum.PCM source.
type Player struct {
	mu     sync.Mutex
	clip   *Clip
	cursor float64
	left   []float64
	right  []float64
}

// NewPlayer starts playback at the beginning of c.
func NewPlayer(c *Clip) (*Player, error) {
	if c == nil || c.Frames() == 0 {
		return nil, ErrEmptyClip
	}
	return &Player{clip: c}, nil
}

// SampleRate reports the clip's native rate.
func (p *Player) SampleRate() float64 { return p.clip.SampleRate }

// Advance moves the cursor forward by dt seconds of audio.
func (p *Player) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	total := float64(p.clip.Frames())
	p.cursor = math.Mod(p.cursor+dt*p.clip.SampleRate, total)
}

// Position returns the cursor in frames.
func (p *Player) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.cursor)
}

// Seek places the cursor at frame, wrapped into the clip.
func (p *Player) Seek(frame int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.clip.Frames()
	frame %= total
	if frame < 0 {
		frame += total
	}
	p.cursor = float64(frame)
}

// Frames returns the n frames ending at the cursor, wrapping past the start of
// the clip. Slices are reused by the next call.
func (p *Player) Frames(n int) ([]float64, []float64, error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("frames %d: %w", n, spectrum.ErrNotEnoughSamples)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if cap(p.left) < n {
		p.left = make([]float64, n)
		p.right = make([]float64, n)
	}
	left := p.left[:n]
	right := p.right[:n]

	total := p.clip.Frames()
	start := (int(p.cursor) - n) % total
	if start < 0 {
		start += total
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % total
		left[i] = p.clip.Left[idx]
		right[i] = p.clip.Right[idx]
	}
	return left, right, nil
}
