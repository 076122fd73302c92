package models

import "fmt"

// PadWidth describes how a volume was embedded into a larger one:
// (zLow, zHigh, yLow, yHigh, xLow, xHigh) pixels added at each end.
// The zero value means a pure crop or no operation.
type PadWidth [6]int

// Axis returns the (low, high) padding of axis 0, 1 or 2
func (p PadWidth) Axis(axis int) (int, int) {
	return p[2*axis], p[2*axis+1]
}

// IsZero reports whether no padding was applied
func (p PadWidth) IsZero() bool {
	return p == PadWidth{}
}

// Clamped returns a copy with negative entries replaced by 0
func (p PadWidth) Clamped() PadWidth {
	for i, v := range p {
		if v < 0 {
			p[i] = 0
		}
	}
	return p
}

// QGrid holds the reciprocal space sampling of a volume: Qx along the
// rocking axis (axis 0), Qz along the detector vertical (axis 1) and Qy
// along the detector horizontal (axis 2). Each component is linearly spaced.
type QGrid struct {
	Qx []float64 `yaml:"qx"`
	Qz []float64 `yaml:"qz"`
	Qy []float64 `yaml:"qy"`
}

// Component returns the coordinate vector of the array axis
func (q *QGrid) Component(axis int) []float64 {
	switch axis {
	case 0:
		return q.Qx
	case 1:
		return q.Qz
	default:
		return q.Qy
	}
}

func (q *QGrid) setComponent(axis int, v []float64) {
	switch axis {
	case 0:
		q.Qx = v
	case 1:
		q.Qz = v
	default:
		q.Qy = v
	}
}

// Clone returns an independent copy (nil stays nil)
func (q *QGrid) Clone() *QGrid {
	if q == nil {
		return nil
	}
	out := &QGrid{}
	for axis := 0; axis < 3; axis++ {
		v := q.Component(axis)
		c := make([]float64, len(v))
		copy(c, v)
		out.setComponent(axis, c)
	}
	return out
}

// CheckShape verifies that the grid is co-registered with a (nz, ny, nx) volume
func (q *QGrid) CheckShape(shape []int) error {
	if len(shape) != 3 {
		return fmt.Errorf("%w: q-grid needs a 3D shape, got %v", ErrShape, shape)
	}
	for axis := 0; axis < 3; axis++ {
		if len(q.Component(axis)) != shape[axis] {
			return fmt.Errorf("%w: q component %d has %d samples for axis length %d",
				ErrShape, axis, len(q.Component(axis)), shape[axis])
		}
	}
	return nil
}

// Slice returns a copy where the component of axis is restricted to [lo, hi)
func (q *QGrid) Slice(axis, lo, hi int) (*QGrid, error) {
	v := q.Component(axis)
	if lo < 0 || hi > len(v) || lo > hi {
		return nil, fmt.Errorf("%w: q slice [%d, %d) outside %d samples", ErrInvalidConfiguration, lo, hi, len(v))
	}
	out := q.Clone()
	sub := make([]float64, hi-lo)
	copy(sub, v[lo:hi])
	out.setComponent(axis, sub)
	return out, nil
}

// Extend returns a copy where the component of axis is regenerated with n
// samples, starting low samples before the current first one, at the
// current sample spacing q[1]-q[0].
func (q *QGrid) Extend(axis, low, n int) (*QGrid, error) {
	v := q.Component(axis)
	if len(v) < 2 {
		return nil, fmt.Errorf("%w: q component %d needs at least 2 samples to extrapolate", ErrShape, axis)
	}
	step := v[1] - v[0]
	start := v[0] - float64(low)*step
	ext := make([]float64, n)
	for i := range ext {
		ext[i] = start + float64(i)*step
	}
	out := q.Clone()
	out.setComponent(axis, ext)
	return out, nil
}
