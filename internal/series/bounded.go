package series

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when a resize asks for more slots than the series can hold.
	ErrCapacityExceeded = errors.New("series: capacity exceeded")
	// ErrNegativeSize is returned for resize requests below zero.
	ErrNegativeSize = errors.New("series: negative size")
	// ErrLengthMismatch is returned when ingested data does not match the logical size.
	ErrLengthMismatch = errors.New("series: length mismatch")
)

// Bounded is a resizable sequence whose storage is allocated once, up front,
// for its full capacity. Only the first Len() slots are addressable.
type Bounded[T any] struct {
	data []T
	def  T
}

// NewBounded allocates a series able to hold up to capacity values.
// New slots created by Resize are set to def.
func NewBounded[T any](capacity int, def T) *Bounded[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Bounded[T]{
		data: make([]T, 0, capacity),
		def:  def,
	}
}

// IsResizeSafe reports whether Resize(size) would succeed.
func (b *Bounded[T]) IsResizeSafe(size int) bool {
	return size >= 0 && size <= cap(b.data)
}

// Resize grows the series with default values or truncates it from the tail.
// On failure nothing is modified.
func (b *Bounded[T]) Resize(size int) error {
	if size < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}
	if !b.IsResizeSafe(size) {
		return fmt.Errorf("%w: requested %d, capacity %d", ErrCapacityExceeded, size, cap(b.data))
	}
	current := len(b.data)
	if size == current {
		return nil
	}
	b.data = b.data[:size]
	for i := current; i < size; i++ {
		b.data[i] = b.def
	}
	return nil
}

// At returns the value at index i. It panics when i is outside [0, Len()).
func (b *Bounded[T]) At(i int) T {
	return b.data[i]
}

// Set stores v at index i. It panics when i is outside [0, Len()).
func (b *Bounded[T]) Set(i int, v T) {
	b.data[i] = v
}

// Len returns the logical size.
func (b *Bounded[T]) Len() int { return len(b.data) }

// Cap returns the maximum size.
func (b *Bounded[T]) Cap() int { return cap(b.data) }

// Default returns the value used for slots added by Resize.
func (b *Bounded[T]) Default() T { return b.def }

// SetDefault changes the value used for future growth. Existing slots keep their values.
func (b *Bounded[T]) SetDefault(v T) { b.def = v }

// Values exposes the live prefix. The slice aliases internal storage and is
// only valid until the next Resize; callers must not modify it.
func (b *Bounded[T]) Values() []T {
	return b.data[:len(b.data):len(b.data)]
}
