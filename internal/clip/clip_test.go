package clip

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestFromInterleavedStereo(t *testing.T) {
	t.Parallel()

	c := fromInterleaved([]float64{1, -1, 0.5, -0.5, 0.25, -0.25}, 2, 8000)
	if c.Frames() != 3 {
		t.Fatalf("frames=%d want 3", c.Frames())
	}
	if c.Left[1] != 0.5 || c.Right[1] != -0.5 {
		t.Fatalf("frame 1 = (%f,%f) want (0.5,-0.5)", c.Left[1], c.Right[1])
	}
}

func TestFromInterleavedMonoDuplicates(t *testing.T) {
	t.Parallel()

	c := fromInterleaved([]float64{0.1, 0.2, 0.3}, 1, 8000)
	for i := range c.Left {
		if c.Left[i] != c.Right[i] {
			t.Fatalf("frame %d: left=%f right=%f", i, c.Left[i], c.Right[i])
		}
	}
	if d := c.Duration(); math.Abs(d-3.0/8000) > 1e-12 {
		t.Fatalf("duration=%f", d)
	}
}

func TestRegistryUnsupported(t *testing.T) {
	t.Parallel()

	_, err := DefaultRegistry().Load(filepath.Join(t.TempDir(), "track.flac"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v want ErrUnsupportedFormat", err)
	}
	if _, ok := DefaultRegistry().Get("WAV"); !ok {
		t.Fatalf("format lookup should be case-insensitive")
	}
}

func TestReadPCM16JoinsSplitSamples(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x40, 0x00, 0xc0, 0xff, 0x7f, 0x00, 0x80, 0x01}
	got, err := readPCM16(iotest.OneByteReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5, -0.5, 32767.0 / 32768, -1}
	if len(got) != len(want) {
		t.Fatalf("samples=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d=%f want %f", i, got[i], want[i])
		}
	}
}

func TestLoadWav(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           []int{16384, -16384, 8192, -8192, 0, 0, 32767, -32768},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "tone.wav" || c.SampleRate != 8000 || c.Frames() != 4 {
		t.Fatalf("clip=%s rate=%f frames=%d", c.Name, c.SampleRate, c.Frames())
	}
	if c.Left[0] != 0.5 || c.Right[0] != -0.5 || c.Right[3] != -1 {
		t.Fatalf("unexpected samples L=%v R=%v", c.Left, c.Right)
	}
}

func TestPlayerWrapsAroundClip(t *testing.T) {
	t.Parallel()

	c := &Clip{SampleRate: 4, Left: []float64{0, 1, 2, 3}, Right: []float64{10, 11, 12, 13}}
	p, err := NewPlayer(c)
	if err != nil {
		t.Fatal(err)
	}

	p.Advance(0.5) // two frames
	if p.Position() != 2 {
		t.Fatalf("position=%d want 2", p.Position())
	}
	left, right, err := p.Frames(3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{3, 0, 1}
	for i := range want {
		if left[i] != want[i] || right[i] != want[i]+10 {
			t.Fatalf("frame %d = (%f,%f) want (%f,%f)", i, left[i], right[i], want[i], want[i]+10)
		}
	}

	p.Advance(1.25) // five frames, wraps to 3
	if p.Position() != 3 {
		t.Fatalf("position=%d want 3", p.Position())
	}

	left, _, err = p.Frames(6)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 6 || left[5] != 2 || left[0] != 1 {
		t.Fatalf("tiled frames=%v", left)
	}

	p.Seek(-1)
	if p.Position() != 3 {
		t.Fatalf("seek -1 position=%d want 3", p.Position())
	}
}

func TestPlayerLongStallWraps(t *testing.T) {
	t.Parallel()

	c := &Clip{SampleRate: 48_000, Left: make([]float64, 10), Right: make([]float64, 10)}
	p, err := NewPlayer(c)
	if err != nil {
		t.Fatal(err)
	}
	p.Advance(3600*24 + 0.0001) // 4147200004.8 frames
	if got := p.Position(); got != 4 {
		t.Fatalf("position=%d want 4", got)
	}
}

func TestPlayerRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := NewPlayer(&Clip{SampleRate: 8000}); !errors.Is(err, ErrEmptyClip) {
		t.Fatalf("err=%v want ErrEmptyClip", err)
	}
}
