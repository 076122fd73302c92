// Package maskedit implements the interactive mask editors as pure state
// transitions. A UI feeds key presses and clicks to Step and renders the
// returned State; nothing in this package draws or blocks.
//
// Key bindings:
//
//	u / d        next / previous frame along the view axis (3D only, wraps)
//	up / down    grow / shrink the square brush
//	right / left double / halve the colour scale maximum
//	m            mask the brush square under the cursor
//	b            erase the brush square back to the original data and mask
//	p            mask the polygon drawn with clicks, in every frame
//	a            restart from the original data, mask and brush width
//	x            pause / resume vertex registration (pan and zoom)
//	q            quit
//
// In projection mode a 3D editor shows the sum along the view axis, frame
// navigation is disabled and m / b act on every plane along the axis.
package maskedit

import (
	"fmt"
	"math"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// EventKind distinguishes key presses from mouse clicks
type EventKind int

const (
	// KeyPress is a keyboard event at the cursor position
	KeyPress EventKind = iota
	// Click is a mouse click registering a polygon vertex
	Click
)

// Event is one user input. X and Y are the cursor position in plane
// coordinates (column, row) of the displayed frame.
type Event struct {
	Kind EventKind
	Key  string
	X, Y float64
}

// Options sets the initial view of an editor
type Options struct {
	// Width is the half-width of the square brush in pixels
	Width int
	// VMax is the initial colour scale maximum
	VMax float64
	// Projection displays the sum along the view axis and applies the
	// brush through the whole volume. 3D only.
	Projection bool
}

// DefaultOptions returns a 5 pixel brush and a colour scale maximum of 10
func DefaultOptions() Options {
	return Options{Width: 5, VMax: 10}
}

// State is the full editor state. States are immutable once returned by
// New3D, New2D or Step: a transition that edits an array works on a copy.
type State struct {
	Data *ndarray.Array[float64]
	Mask *ndarray.Array[uint8]

	// Axis is the view axis of a 3D editor: frames are planes orthogonal to it
	Axis int
	// Frame is the displayed plane index along Axis
	Frame int

	Width      int
	VMax       float64
	Projection bool
	Paused     bool
	Vertices   []Point
	Done       bool

	original     *ndarray.Array[float64]
	originalMask *ndarray.Array[uint8]
	initialWidth int
}

// New3D starts an editor on a 3D dataset viewed along axis (0, 1 or 2).
func New3D(data *ndarray.Array[float64], mask *ndarray.Array[uint8], axis int, opts Options) (*State, error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, err
	}
	if err := mask.RequireNdim(3, "mask"); err != nil {
		return nil, err
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("%w: view axis %d", models.ErrInvalidArgument, axis)
	}
	return newState(data, mask, axis, opts)
}

// New2D starts an editor on a single 2D frame.
func New2D(data *ndarray.Array[float64], mask *ndarray.Array[uint8], opts Options) (*State, error) {
	if err := data.RequireNdim(2, "data"); err != nil {
		return nil, err
	}
	if err := mask.RequireNdim(2, "mask"); err != nil {
		return nil, err
	}
	if opts.Projection {
		return nil, fmt.Errorf("%w: projection mode needs a 3D dataset", models.ErrInvalidArgument)
	}
	return newState(data, mask, 0, opts)
}

func newState(data *ndarray.Array[float64], mask *ndarray.Array[uint8], axis int, opts Options) (*State, error) {
	if !ndarray.SameShape(data, mask) {
		return nil, fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, data.Shape(), mask.Shape())
	}
	if opts.Width < 0 {
		opts.Width = 0
	}
	if opts.VMax < 1 {
		opts.VMax = 1
	}
	return &State{
		Data:         data.Clone(),
		Mask:         mask.Clone(),
		Axis:         axis,
		Width:        opts.Width,
		VMax:         opts.VMax,
		Projection:   opts.Projection,
		original:     data.Clone(),
		originalMask: mask.Clone(),
		initialWidth: opts.Width,
	}, nil
}

// Is3D reports whether the editor works on a volume
func (s *State) Is3D() bool {
	return s.Data.Ndim() == 3
}

// PlaneShape returns the (rows, cols) of the displayed plane
func (s *State) PlaneShape() (int, int) {
	if !s.Is3D() {
		return s.Data.Dim(0), s.Data.Dim(1)
	}
	return ndarray.PlaneShape(s.Data.Shape(), s.Axis)
}

// offset returns the flat index of (row, col) of plane idx
func (s *State) offset(idx, row, col int) int {
	if !s.Is3D() {
		return s.Data.Index(row, col)
	}
	z, y, x := ndarray.PlaneIndex(s.Axis, idx, row, col)
	return s.Data.Index(z, y, x)
}

// planes returns the plane indices an edit applies to
func (s *State) planes() []int {
	if !s.Projection {
		return []int{s.Frame}
	}
	idx := make([]int, s.Data.Dim(s.Axis))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// DisplayedFrame returns the plane currently shown, or the sum along the
// view axis in projection mode
func (s *State) DisplayedFrame() (*ndarray.Array[float64], error) {
	if !s.Is3D() {
		return s.Data.Clone(), nil
	}
	if s.Projection {
		return ndarray.SumAxis(s.Data, s.Axis)
	}
	return ndarray.Frame(s.Data, s.Axis, s.Frame)
}

// DisplayedMask returns the mask of the displayed plane. In projection mode
// a pixel is masked when any voxel along the view axis is.
func (s *State) DisplayedMask() (*ndarray.Array[uint8], error) {
	if !s.Is3D() {
		return s.Mask.Clone(), nil
	}
	if !s.Projection {
		return ndarray.Frame(s.Mask, s.Axis, s.Frame)
	}
	sum, err := ndarray.SumAxis(s.Mask, s.Axis)
	if err != nil {
		return nil, err
	}
	return ndarray.Map(sum, func(v float64) uint8 {
		if v != 0 {
			return 1
		}
		return 0
	}), nil
}

// Step applies one event and returns the next state. Unknown keys and any
// event after quit return the state unchanged.
//
// Restart (a) restores the original data and mask, drops the polygon
// vertices and resets the brush to the width the editor was created with.
func Step(s *State, ev Event) (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil editor state", models.ErrInvalidArgument)
	}
	if s.Done {
		return s, nil
	}

	next := *s
	if ev.Kind == Click {
		if !s.Paused {
			next.Vertices = append(append([]Point(nil), s.Vertices...), Point{X: ev.X, Y: ev.Y})
		}
		return &next, nil
	}

	switch ev.Key {
	case "u", "d":
		if !s.Is3D() || s.Projection {
			return s, nil
		}
		n := s.Data.Dim(s.Axis)
		if n == 0 {
			return s, nil
		}
		step := 1
		if ev.Key == "d" {
			step = -1
		}
		next.Frame = ((s.Frame+step)%n + n) % n

	case "up":
		next.Width = s.Width + 1
	case "down":
		next.Width = max(s.Width-1, 0)

	case "right":
		next.VMax = s.VMax * 2
	case "left":
		next.VMax = math.Max(s.VMax/2, 1)

	case "m":
		next.Data, next.Mask = s.Data.Clone(), s.Mask.Clone()
		nd, nm := next.Data.Data(), next.Mask.Data()
		s.forBrush(ev, func(off int) {
			nd[off] = 0
			nm[off] = 1
		})

	case "b":
		next.Data, next.Mask = s.Data.Clone(), s.Mask.Clone()
		nd, nm := next.Data.Data(), next.Mask.Data()
		od, om := s.original.Data(), s.originalMask.Data()
		s.forBrush(ev, func(off int) {
			nd[off] = od[off]
			nm[off] = om[off]
		})

	case "p":
		next.Data, next.Mask = s.maskPolygon()
		next.Vertices = nil

	case "a":
		next.Data, next.Mask = s.restart()
		next.Vertices = nil
		next.Width = s.initialWidth

	case "x":
		next.Paused = !s.Paused

	case "q":
		next.Done = true

	default:
		return s, nil
	}
	return &next, nil
}

// forBrush calls f with the flat offset of every pixel of the brush square
// centered on the cursor, clipped to the displayed plane. In projection
// mode the square is repeated in every plane along the view axis.
func (s *State) forBrush(ev Event, f func(off int)) {
	rows, cols := s.PlaneShape()
	row := int(math.Round(ev.Y))
	col := int(math.Round(ev.X))
	for _, idx := range s.planes() {
		for r := max(row-s.Width, 0); r <= min(row+s.Width, rows-1); r++ {
			for c := max(col-s.Width, 0); c <= min(col+s.Width, cols-1); c++ {
				f(s.offset(idx, r, c))
			}
		}
	}
}

// maskPolygon masks the polygon interior in every plane along the view axis
func (s *State) maskPolygon() (*ndarray.Array[float64], *ndarray.Array[uint8]) {
	if len(s.Vertices) < 3 {
		return s.Data, s.Mask
	}
	rows, cols := s.PlaneShape()
	inside := rasterize(s.Vertices, rows, cols)
	if len(inside) == 0 {
		return s.Data, s.Mask
	}

	data, mask := s.Data.Clone(), s.Mask.Clone()
	nd, nm := data.Data(), mask.Data()
	planes := 1
	if s.Is3D() {
		planes = s.Data.Dim(s.Axis)
	}
	for idx := 0; idx < planes; idx++ {
		for _, flat := range inside {
			off := s.offset(idx, flat/cols, flat%cols)
			nd[off] = 0
			nm[off] = 1
		}
	}
	return data, mask
}

// restart returns the original data with the originally masked pixels
// zeroed, and the original mask
func (s *State) restart() (*ndarray.Array[float64], *ndarray.Array[uint8]) {
	data := s.original.Clone()
	nd := data.Data()
	for i, m := range s.originalMask.Data() {
		if m != 0 {
			nd[i] = 0
		}
	}
	return data, s.originalMask.Clone()
}

// Run applies events in order and stops at quit. It returns the last state.
func Run(s *State, events []Event) (*State, error) {
	var err error
	for _, ev := range events {
		if s, err = Step(s, ev); err != nil {
			return nil, err
		}
		if s.Done {
			break
		}
	}
	return s, nil
}
