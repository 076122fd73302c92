// Package ndarray provides a dense, row-major N-dimensional array used for
// detector frames, 3D volumes and masks.
//
// All operations return new arrays; inputs are never modified. This keeps
// buffer ownership explicit: every preprocessing stage owns its output until
// it hands it to the next stage.
package ndarray

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"bcdiprep/internal/models"
)

// Element is the set of value types an array can hold
type Element interface {
	constraints.Float | constraints.Integer
}

// Array is a dense row-major array. The last axis varies fastest.
type Array[T Element] struct {
	shape   []int
	strides []int
	data    []T
}

// New allocates a zero-filled array of the given shape
func New[T Element](shape ...int) (*Array[T], error) {
	size, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	return &Array[T]{
		shape:   append([]int(nil), shape...),
		strides: stridesOf(shape),
		data:    make([]T, size),
	}, nil
}

// Full allocates an array of the given shape filled with value
func Full[T Element](value T, shape ...int) (*Array[T], error) {
	a, err := New[T](shape...)
	if err != nil {
		return nil, err
	}
	for i := range a.data {
		a.data[i] = value
	}
	return a, nil
}

// FromSlice wraps a copy of data with the given shape
func FromSlice[T Element](data []T, shape ...int) (*Array[T], error) {
	size, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: %d values cannot fill shape %v", models.ErrShape, len(data), shape)
	}
	a := &Array[T]{
		shape:   append([]int(nil), shape...),
		strides: stridesOf(shape),
		data:    make([]T, size),
	}
	copy(a.data, data)
	return a, nil
}

func checkShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", models.ErrShape)
	}
	size := 1
	for _, s := range shape {
		if s < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", models.ErrShape, shape)
		}
		size *= s
	}
	return size, nil
}

func stridesOf(shape []int) []int {
	strides := make([]int, len(shape))
	step := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = step
		step *= shape[i]
	}
	return strides
}

// Shape returns a copy of the dimensions
func (a *Array[T]) Shape() []int {
	return append([]int(nil), a.shape...)
}

// Ndim returns the number of dimensions
func (a *Array[T]) Ndim() int { return len(a.shape) }

// Size returns the number of elements
func (a *Array[T]) Size() int { return len(a.data) }

// Dim returns the length of one axis
func (a *Array[T]) Dim(axis int) int { return a.shape[axis] }

// Data exposes the underlying row-major buffer. Callers that keep the
// array pure must not write to it.
func (a *Array[T]) Data() []T { return a.data }

// SameShape reports whether both arrays have identical dimensions
func SameShape[T, U Element](a *Array[T], b *Array[U]) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// RequireNdim returns ErrShape unless the array has n dimensions
func (a *Array[T]) RequireNdim(n int, name string) error {
	if a == nil {
		return fmt.Errorf("%w: %s is nil", models.ErrShape, name)
	}
	if len(a.shape) != n {
		return fmt.Errorf("%w: %s should be %dD, got %dD", models.ErrShape, name, n, len(a.shape))
	}
	return nil
}

// Index converts multi-dimensional indices to a flat offset
func (a *Array[T]) Index(idx ...int) int {
	off := 0
	for i, v := range idx {
		off += v * a.strides[i]
	}
	return off
}

// Unravel converts a flat offset back to multi-dimensional indices
func (a *Array[T]) Unravel(off int) []int {
	idx := make([]int, len(a.shape))
	for i, s := range a.strides {
		idx[i] = off / s
		off %= s
	}
	return idx
}

// At returns the element at the given indices
func (a *Array[T]) At(idx ...int) T {
	return a.data[a.Index(idx...)]
}

// Set stores v at the given indices
func (a *Array[T]) Set(v T, idx ...int) {
	a.data[a.Index(idx...)] = v
}

// Clone returns a deep copy
func (a *Array[T]) Clone() *Array[T] {
	out := &Array[T]{
		shape:   append([]int(nil), a.shape...),
		strides: append([]int(nil), a.strides...),
		data:    make([]T, len(a.data)),
	}
	copy(out.data, a.data)
	return out
}

// Reshape returns a copy with a new shape holding the same number of elements
func (a *Array[T]) Reshape(shape ...int) (*Array[T], error) {
	return FromSlice(a.data, shape...)
}

// Map returns a new array of the same shape with f applied to every element
func Map[T, U Element](a *Array[T], f func(T) U) *Array[U] {
	out := &Array[U]{
		shape:   append([]int(nil), a.shape...),
		strides: append([]int(nil), a.strides...),
		data:    make([]U, len(a.data)),
	}
	for i, v := range a.data {
		out.data[i] = f(v)
	}
	return out
}

// Sum returns the sum of all elements as float64
func (a *Array[T]) Sum() float64 {
	s := 0.0
	for _, v := range a.data {
		s += float64(v)
	}
	return s
}

// Max returns the largest element
func (a *Array[T]) Max() T {
	if len(a.data) == 0 {
		return 0
	}
	m := a.data[0]
	for _, v := range a.data[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// ArgMaxAbs returns the indices of the element with the largest absolute
// value; the first one wins on ties.
func (a *Array[T]) ArgMaxAbs() []int {
	best, bestOff := -1.0, 0
	for i, v := range a.data {
		if av := math.Abs(float64(v)); av > best {
			best, bestOff = av, i
		}
	}
	return a.Unravel(bestOff)
}

// CenterOfMass returns the intensity weighted centroid. The second return
// value is false when the total intensity is zero.
func (a *Array[T]) CenterOfMass() ([]float64, bool) {
	com := make([]float64, len(a.shape))
	total := 0.0
	for off, v := range a.data {
		w := float64(v)
		if w == 0 {
			continue
		}
		total += w
		rem := off
		for i, s := range a.strides {
			com[i] += w * float64(rem/s)
			rem %= s
		}
	}
	if total == 0 {
		return com, false
	}
	for i := range com {
		com[i] /= total
	}
	return com, true
}
