package ndarray

import (
	"fmt"

	"bcdiprep/internal/models"
)

// Bounds is a 3D box [Z0, Z1) x [Y0, Y1) x [X0, X1)
type Bounds struct {
	Z0, Z1, Y0, Y1, X0, X1 int
}

// BoundsFromSlice builds Bounds from (zstart, zstop, ystart, ystop, xstart, xstop)
func BoundsFromSlice(v []int) (Bounds, error) {
	if len(v) != 6 {
		return Bounds{}, fmt.Errorf("%w: bounds need 6 integers, got %d", models.ErrInvalidConfiguration, len(v))
	}
	return Bounds{Z0: v[0], Z1: v[1], Y0: v[2], Y1: v[3], X0: v[4], X1: v[5]}, nil
}

// Axis returns the [lo, hi) range of axis 0, 1 or 2
func (b Bounds) Axis(axis int) (int, int) {
	switch axis {
	case 0:
		return b.Z0, b.Z1
	case 1:
		return b.Y0, b.Y1
	default:
		return b.X0, b.X1
	}
}

// Shape returns the extent of the box
func (b Bounds) Shape() []int {
	return []int{b.Z1 - b.Z0, b.Y1 - b.Y0, b.X1 - b.X0}
}

// Within reports whether the box is non-empty and lies inside a (nz, ny, nx) array
func (b Bounds) Within(shape []int) bool {
	if len(shape) != 3 {
		return false
	}
	for axis := 0; axis < 3; axis++ {
		lo, hi := b.Axis(axis)
		if lo < 0 || hi > shape[axis] || lo >= hi {
			return false
		}
	}
	return true
}

// Crop3 copies the box out of a 3D array
func Crop3[T Element](a *Array[T], b Bounds) (*Array[T], error) {
	if err := a.RequireNdim(3, "array"); err != nil {
		return nil, err
	}
	if !b.Within(a.shape) {
		return nil, fmt.Errorf("%w: crop box %+v outside array of shape %v", models.ErrInvalidConfiguration, b, a.shape)
	}
	s := b.Shape()
	out, _ := New[T](s...)
	nx := s[2]
	for z := 0; z < s[0]; z++ {
		for y := 0; y < s[1]; y++ {
			src := a.Index(b.Z0+z, b.Y0+y, b.X0)
			dst := out.Index(z, y, 0)
			copy(out.data[dst:dst+nx], a.data[src:src+nx])
		}
	}
	return out, nil
}

// ZeroPad embeds a 3D array into a larger one filled with fill (0 for data,
// 1 for masks). The original occupies
// [zLow, zLow+nz) x [yLow, yLow+ny) x [xLow, xLow+nx).
func ZeroPad[T Element](a *Array[T], pw models.PadWidth, fill T) (*Array[T], error) {
	if err := a.RequireNdim(3, "array"); err != nil {
		return nil, err
	}
	for _, v := range pw {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative pad width %v", models.ErrInvalidConfiguration, pw)
		}
	}
	nz, ny, nx := a.shape[0], a.shape[1], a.shape[2]
	out, _ := Full(fill, nz+pw[0]+pw[1], ny+pw[2]+pw[3], nx+pw[4]+pw[5])
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			src := a.Index(z, y, 0)
			dst := out.Index(pw[0]+z, pw[2]+y, pw[4])
			copy(out.data[dst:dst+nx], a.data[src:src+nx])
		}
	}
	return out, nil
}

// planeAxes returns the (row, column) axes of the plane orthogonal to axis
func planeAxes(axis int) (int, int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// PlaneShape returns the (rows, cols) of the planes orthogonal to axis of a 3D shape
func PlaneShape(shape []int, axis int) (int, int) {
	r, c := planeAxes(axis)
	return shape[r], shape[c]
}

// PlaneIndex returns the 3D indices of (row, col) in plane idx along axis
func PlaneIndex(axis, idx, row, col int) (int, int, int) {
	switch axis {
	case 0:
		return idx, row, col
	case 1:
		return row, idx, col
	default:
		return row, col, idx
	}
}

// Frame extracts the 2D plane at position idx along axis of a 3D array
func Frame[T Element](a *Array[T], axis, idx int) (*Array[T], error) {
	if err := a.RequireNdim(3, "array"); err != nil {
		return nil, err
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("%w: axis %d", models.ErrInvalidArgument, axis)
	}
	if idx < 0 || idx >= a.shape[axis] {
		return nil, fmt.Errorf("%w: frame %d outside axis of length %d", models.ErrInvalidArgument, idx, a.shape[axis])
	}
	rows, cols := PlaneShape(a.shape, axis)
	out, _ := New[T](rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			z, y, x := PlaneIndex(axis, idx, r, c)
			out.data[r*cols+c] = a.data[a.Index(z, y, x)]
		}
	}
	return out, nil
}

// SumAxis sums a 3D array along axis and returns the 2D projection as float64
func SumAxis[T Element](a *Array[T], axis int) (*Array[float64], error) {
	if err := a.RequireNdim(3, "array"); err != nil {
		return nil, err
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("%w: axis %d", models.ErrInvalidArgument, axis)
	}
	rows, cols := PlaneShape(a.shape, axis)
	out, _ := New[float64](rows, cols)
	r, c := planeAxes(axis)
	for off, v := range a.data {
		idx := a.Unravel(off)
		out.data[idx[r]*cols+idx[c]] += float64(v)
	}
	return out, nil
}

// Broadcast repeats a 2D (ny, nx) array n times along a new first axis
func Broadcast[T Element](a *Array[T], n int) (*Array[T], error) {
	if err := a.RequireNdim(2, "array"); err != nil {
		return nil, err
	}
	out, err := New[T](n, a.shape[0], a.shape[1])
	if err != nil {
		return nil, err
	}
	plane := len(a.data)
	for z := 0; z < n; z++ {
		copy(out.data[z*plane:(z+1)*plane], a.data)
	}
	return out, nil
}
