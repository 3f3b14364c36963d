package series

import "fmt"

// Stereo holds the latest left/right bin magnitudes. Both channels always share one size.
type Stereo struct {
	left  *Bounded[float64]
	right *Bounded[float64]
	size  int
}

// NewStereo allocates both channels with the same capacity and a zero size.
func NewStereo(capacity int) *Stereo {
	return &Stereo{
		left:  NewBounded(capacity, 0.0),
		right: NewBounded(capacity, 0.0),
	}
}

// ResizeTo changes both channels to size bins. Either both change or neither does.
func (s *Stereo) ResizeTo(size int) error {
	if size < 0 {
		return fmt.Errorf("resize bins to %d: %w", size, ErrNegativeSize)
	}
	if !s.left.IsResizeSafe(size) || !s.right.IsResizeSafe(size) {
		return fmt.Errorf("resize bins to %d: %w", size, ErrCapacityExceeded)
	}
	if err := s.left.Resize(size); err != nil {
		return err
	}
	if err := s.right.Resize(size); err != nil {
		return err
	}
	s.size = size
	return nil
}

// Ingest copies freshly acquired magnitudes into both channels.
func (s *Stereo) Ingest(left, right []float64) error {
	if len(left) != s.size || len(right) != s.size {
		return fmt.Errorf("%w: left=%d right=%d size=%d", ErrLengthMismatch, len(left), len(right), s.size)
	}
	copy(s.left.data, left)
	copy(s.right.data, right)
	return nil
}

// Size returns the shared logical size.
func (s *Stereo) Size() int { return s.size }

// Capacity returns the maximum number of bins per channel.
func (s *Stereo) Capacity() int { return s.left.Cap() }

// Left returns the left channel series.
func (s *Stereo) Left() *Bounded[float64] { return s.left }

// Right returns the right channel series.
func (s *Stereo) Right() *Bounded[float64] { return s.right }
