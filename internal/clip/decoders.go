package clip

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var errInvalidFile = errors.New("invalid file header")

type wavDecoder struct{}

func (wavDecoder) Decode(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wav: %w", errInvalidFile)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	return fromIntBuffer(buf, int(dec.BitDepth))
}

type aiffDecoder struct{}

func (aiffDecoder) Decode(r io.ReadSeeker) (*Clip, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("aiff: %w", errInvalidFile)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("aiff: %w", err)
	}
	return fromIntBuffer(buf, int(dec.BitDepth))
}

// fromIntBuffer normalizes go-audio integer PCM by its source bit depth.
func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (*Clip, error) {
	if buf == nil || buf.Format == nil {
		return nil, ErrEmptyClip
	}
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return fromInterleaved(samples, buf.Format.NumChannels, float64(buf.Format.SampleRate)), nil
}

type mp3Decoder struct{}

// Decode reads the whole stream; go-mp3 always yields 16-bit little-endian stereo.
func (mp3Decoder) Decode(r io.ReadSeeker) (*Clip, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	samples, err := readPCM16(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return fromInterleaved(samples, 2, float64(dec.SampleRate())), nil
}

// readPCM16 decodes signed 16-bit little-endian samples until EOF. A sample
// split across two reads is joined; a lone trailing byte is dropped.
func readPCM16(r io.Reader) ([]float64, error) {
	var samples []float64
	chunk := make([]byte, 8192)
	pending := 0
	for {
		n, err := r.Read(chunk[pending:])
		n += pending
		even := n &^ 1
		for i := 0; i < even; i += 2 {
			v := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
			samples = append(samples, float64(v)/32768.0)
		}
		pending = n - even
		if pending == 1 {
			chunk[0] = chunk[even]
		}
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

type vorbisDecoder struct{}

func (vorbisDecoder) Decode(r io.ReadSeeker) (*Clip, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("ogg: %w", err)
	}
	var samples []float64
	chunk := make([]float32, 4096*dec.Channels())
	for {
		n, err := dec.Read(chunk)
		for _, v := range chunk[:n] {
			samples = append(samples, float64(v))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ogg: %w", err)
		}
	}
	return fromInterleaved(samples, dec.Channels(), float64(dec.SampleRate())), nil
}
