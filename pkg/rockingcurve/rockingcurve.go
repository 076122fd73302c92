// Package rockingcurve integrates the intensity of a rocking curve around
// the Bragg peak and measures its width. It is used to choose the region of
// interest before a full preprocessing run.
package rockingcurve

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// HalfWidth is the half size in pixels of the detector box integrated per frame
const HalfWidth = 20

// InterpolationFactor sets the number of points of the interpolated curve
// per measured frame
const InterpolationFactor = 5

// PeakMethod selects how the Bragg peak is located
type PeakMethod int

const (
	// Max takes the voxel of largest absolute intensity
	Max PeakMethod = iota
	// COM takes the intensity centroid of the whole volume
	COM
	// MaxCOM refines the maximum by the centroid of the box around it
	MaxCOM
)

func (m PeakMethod) String() string {
	switch m {
	case COM:
		return "com"
	case MaxCOM:
		return "maxcom"
	default:
		return "max"
	}
}

// ParsePeakMethod accepts "max", "com" and "maxcom"
func ParsePeakMethod(s string) (PeakMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max":
		return Max, nil
	case "com":
		return COM, nil
	case "maxcom":
		return MaxCOM, nil
	default:
		return 0, fmt.Errorf("%w: peak method %q, expected max, com or maxcom", models.ErrInvalidConfiguration, s)
	}
}

// FindBragg returns the (z, y, x) position of the Bragg peak
func FindBragg(data *ndarray.Array[float64], method PeakMethod) ([3]float64, error) {
	var peak [3]float64
	if err := data.RequireNdim(3, "data"); err != nil {
		return peak, err
	}
	if data.Size() == 0 {
		return peak, fmt.Errorf("%w: empty volume", models.ErrShape)
	}

	switch method {
	case COM:
		com, ok := data.CenterOfMass()
		if !ok {
			return peak, fmt.Errorf("%w: center of mass of a volume without intensity", models.ErrInvalidArgument)
		}
		copy(peak[:], com)
		return peak, nil

	case MaxCOM:
		idx := data.ArgMaxAbs()
		var lo, hi [3]int
		for axis := 0; axis < 3; axis++ {
			lo[axis] = max(idx[axis]-HalfWidth, 0)
			hi[axis] = min(idx[axis]+HalfWidth, data.Dim(axis))
		}
		b := ndarray.Bounds{Z0: lo[0], Z1: hi[0], Y0: lo[1], Y1: hi[1], X0: lo[2], X1: hi[2]}
		box, err := ndarray.Crop3(data, b)
		if err != nil {
			return peak, err
		}
		com, ok := box.CenterOfMass()
		if !ok {
			for axis := range peak {
				peak[axis] = float64(idx[axis])
			}
			return peak, nil
		}
		for axis := range peak {
			peak[axis] = float64(lo[axis]) + com[axis]
		}
		return peak, nil

	default:
		for axis, v := range data.ArgMaxAbs() {
			peak[axis] = float64(v)
		}
		return peak, nil
	}
}

// Curve returns the intensity integrated per frame over the detector box
// [y0-halfWidth, y0+halfWidth) x [x0-halfWidth, x0+halfWidth), clipped to
// the frame
func Curve(data *ndarray.Array[float64], y0, x0, halfWidth int) ([]float64, error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, err
	}
	nz, ny, nx := data.Dim(0), data.Dim(1), data.Dim(2)
	if y0 < 0 || y0 >= ny || x0 < 0 || x0 >= nx {
		return nil, fmt.Errorf("%w: box center (%d, %d) outside %dx%d frames", models.ErrInvalidArgument, y0, x0, ny, nx)
	}
	if halfWidth <= 0 {
		return nil, fmt.Errorf("%w: box half width %d", models.ErrInvalidArgument, halfWidth)
	}

	y1, y2 := max(y0-halfWidth, 0), min(y0+halfWidth, ny)
	x1, x2 := max(x0-halfWidth, 0), min(x0+halfWidth, nx)
	curve := make([]float64, nz)
	d := data.Data()
	for z := 0; z < nz; z++ {
		for y := y1; y < y2; y++ {
			off := (z*ny+y)*nx
			curve[z] += floats.Sum(d[off+x1 : off+x2])
		}
	}
	return curve, nil
}

// FWHM measures the full width at half maximum of a curve sampled at the
// increasing positions tilt. The curve is interpolated by a natural cubic
// spline on InterpolationFactor*len(curve) evenly spaced points and the
// width is the number of points at or above half the maximum times the
// point spacing.
func FWHM(tilt, curve []float64) (float64, error) {
	n := len(curve)
	if len(tilt) != n {
		return 0, fmt.Errorf("%w: %d tilt values for %d curve points", models.ErrLengthMismatch, len(tilt), n)
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: a curve needs at least 2 points, got %d", models.ErrInvalidArgument, n)
	}
	for i := 1; i < n; i++ {
		if tilt[i] <= tilt[i-1] {
			return 0, fmt.Errorf("%w: tilt values must increase strictly", models.ErrInvalidArgument)
		}
	}

	var predictor interp.FittablePredictor
	if n >= 3 {
		predictor = &interp.NaturalCubic{}
	} else {
		predictor = &interp.PiecewiseLinear{}
	}
	if err := predictor.Fit(tilt, curve); err != nil {
		return 0, fmt.Errorf("failed to interpolate rocking curve: %v", err)
	}

	points := InterpolationFactor * n
	tmin, tmax := tilt[0], tilt[n-1]
	grid := floats.Span(make([]float64, points), tmin, tmax)
	interpolated := make([]float64, points)
	for i, t := range grid {
		interpolated[i] = predictor.Predict(t)
	}

	half := floats.Max(interpolated) / 2
	count := 0
	for _, v := range interpolated {
		if v >= half {
			count++
		}
	}
	return float64(count) * (tmax - tmin) / float64(points-1), nil
}

// Analysis is the summary of a rocking curve
type Analysis struct {
	// Peak is the rounded Bragg peak position (z, y, x)
	Peak [3]int
	// Curve is the integrated intensity per frame
	Curve []float64
	// PeakFrame is the frame of maximum integrated intensity
	PeakFrame int
	// FWHM is in the unit of the tilt values
	FWHM float64
}

// Analyze locates the peak, integrates the curve around it and measures its
// width. A nil tilt uses the frame index. A non-empty position (y, x)
// overrides the detected detector position of the box.
func Analyze(data *ndarray.Array[float64], method PeakMethod, tilt []float64, position []int) (*Analysis, error) {
	peak, err := FindBragg(data, method)
	if err != nil {
		return nil, err
	}
	a := &Analysis{}
	for axis, v := range peak {
		a.Peak[axis] = int(math.RoundToEven(v))
	}

	y0, x0 := a.Peak[1], a.Peak[2]
	if len(position) > 0 {
		if len(position) != 2 {
			return nil, fmt.Errorf("%w: box position needs (y, x), got %v", models.ErrInvalidConfiguration, position)
		}
		y0, x0 = position[0], position[1]
	}
	if a.Curve, err = Curve(data, y0, x0, HalfWidth); err != nil {
		return nil, err
	}
	a.PeakFrame = floats.MaxIdx(a.Curve)

	if tilt == nil {
		tilt = make([]float64, len(a.Curve))
		for i := range tilt {
			tilt[i] = float64(i)
		}
	}
	if a.FWHM, err = FWHM(tilt, a.Curve); err != nil {
		return nil, err
	}
	return a, nil
}
