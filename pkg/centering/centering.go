// Package centering locates the Bragg peak of a rocking curve and crops or
// pads the dataset so that every axis has an FFT friendly size.
//
// The engine keeps four things co-registered through every resize: the
// intensity volume, its mask, the frame provenance vector and the optional
// reciprocal space grid. A call either fails during validation, before any
// array is touched, or returns a fully consistent Result.
package centering

import (
	"fmt"
	"log"
	"math"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/fftsize"
	"bcdiprep/pkg/ndarray"
)

// Options configures CenterFFT. The zero value centers on the maximum and
// uses the engine FFT constraint; Policy must be set.
type Options struct {
	// Centering selects how the peak is located when PeakOverride is empty
	Centering CenteringMode

	// Policy selects the crop/pad strategy
	Policy Policy

	// PadSize is the output size (nz, ny, nx) of the symmetric pad
	// policies. Each entry must already satisfy the FFT constraint.
	PadSize []int

	// FixedBounds is a literal crop box (zstart, zstop, ystart, ystop,
	// xstart, xstop) used by NoOp
	FixedBounds []int

	// PeakOverride is a user defined peak position (z, y, x)
	PeakOverride []int

	// MaxPrime and Divisors define the FFT constraint; zero values select
	// fftsize.EngineMaxPrime and fftsize.EngineDivisors
	MaxPrime int
	Divisors []int

	// Logger receives diagnostics; nil uses log.Default()
	Logger *log.Logger
}

// Result is the transformed dataset
type Result struct {
	Data     *ndarray.Array[float64]
	Mask     *ndarray.Array[uint8]
	PadWidth models.PadWidth
	Frames   models.Provenance
	QGrid    *models.QGrid

	// Peak is the rounded peak position in the input volume
	Peak [3]int

	// Policy is the policy actually applied; NoOp when the symmetric box
	// around the peak collapsed
	Policy Policy
}

// plan is a validated resize: an optional crop followed by a padding
type plan struct {
	crop *ndarray.Bounds
	pad  models.PadWidth
}

// engine holds the validated inputs of one CenterFFT call
type engine struct {
	opts     Options
	shape    [3]int
	peak     [3]int
	extent   [3]int
	maxPrime int
	divisors []int
	logger   *log.Logger
}

// CenterFFT locates the peak of data and resizes data, mask, frames and q
// according to opts.Policy. Inputs are never modified. q may be nil.
//
// The symmetric box around the peak has per-axis extent
// 2*min(peak, size-peak). When it collapses on any axis the call degrades
// to a pass-through NoOp and logs a diagnostic instead of failing.
func CenterFFT(data *ndarray.Array[float64], mask *ndarray.Array[uint8], frames models.Provenance, q *models.QGrid, opts Options) (*Result, error) {
	e, err := newEngine(data, mask, frames, q, opts)
	if err != nil {
		return nil, err
	}

	policy := opts.Policy
	if e.degenerate() {
		e.logger.Printf("Symmetric box around the peak %v is empty %v, skipping crop and pad", e.peak, e.extent)
		policy = NoOp
	}

	p, err := e.makePlan(policy, e.degenerate())
	if err != nil {
		return nil, err
	}

	res, err := e.apply(p, data, mask, frames, q)
	if err != nil {
		return nil, err
	}
	res.Peak = e.peak
	res.Policy = policy
	e.logger.Printf("FFT box (qx, qz, qy): %v, pad width %v", res.Data.Shape(), res.PadWidth)
	return res, nil
}

// newEngine validates every input and option and locates the peak
func newEngine(data *ndarray.Array[float64], mask *ndarray.Array[uint8], frames models.Provenance, q *models.QGrid, opts Options) (*engine, error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, err
	}
	if err := mask.RequireNdim(3, "mask"); err != nil {
		return nil, err
	}
	if !ndarray.SameShape(data, mask) {
		return nil, fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, data.Shape(), mask.Shape())
	}
	if q != nil {
		if err := q.CheckShape(data.Shape()); err != nil {
			return nil, err
		}
	}
	if !opts.Policy.valid() {
		return nil, fmt.Errorf("%w: policy %d", models.ErrInvalidConfiguration, int(opts.Policy))
	}
	if opts.Centering != Max && opts.Centering != CenterOfMass {
		return nil, fmt.Errorf("%w: centering mode %d", models.ErrInvalidConfiguration, int(opts.Centering))
	}

	e := &engine{
		opts:     opts,
		shape:    [3]int{data.Dim(0), data.Dim(1), data.Dim(2)},
		maxPrime: opts.MaxPrime,
		divisors: opts.Divisors,
		logger:   opts.Logger,
	}
	if e.maxPrime == 0 {
		e.maxPrime = fftsize.EngineMaxPrime
	}
	if e.divisors == nil {
		e.divisors = fftsize.EngineDivisors
	}
	if e.logger == nil {
		e.logger = log.Default()
	}

	if n := frames.Active(); n != e.shape[0] {
		return nil, fmt.Errorf("%w: %d active frames for %d frames in data", models.ErrLengthMismatch, n, e.shape[0])
	}

	if len(opts.PadSize) > 0 {
		if len(opts.PadSize) != 3 {
			return nil, fmt.Errorf("%w: pad size needs 3 integers, got %v", models.ErrInvalidConfiguration, opts.PadSize)
		}
		for _, s := range opts.PadSize {
			if !fftsize.Satisfies(s, e.maxPrime, e.divisors) {
				return nil, fmt.Errorf("%w: pad size %d does not meet FFT requirements (max prime %d, divisors %v)",
					models.ErrInvalidConfiguration, s, e.maxPrime, e.divisors)
			}
		}
	} else if opts.Policy.needsPadSize() {
		return nil, fmt.Errorf("%w: policy %s requires a pad size", models.ErrInvalidConfiguration, opts.Policy)
	}

	if len(opts.FixedBounds) > 0 {
		b, err := ndarray.BoundsFromSlice(opts.FixedBounds)
		if err != nil {
			return nil, err
		}
		if opts.Policy == NoOp && !b.Within(data.Shape()) {
			return nil, fmt.Errorf("%w: fixed bounds %v outside data of shape %v",
				models.ErrInvalidConfiguration, opts.FixedBounds, data.Shape())
		}
	}

	if err := e.locatePeak(data); err != nil {
		return nil, err
	}
	for axis := 0; axis < 3; axis++ {
		e.extent[axis] = 2 * min(e.peak[axis], e.shape[axis]-e.peak[axis])
	}
	e.logger.Printf("Max symmetrical box (qx, qz, qy): %v", e.extent)
	return e, nil
}

// locatePeak sets the rounded peak from the override or from the data
func (e *engine) locatePeak(data *ndarray.Array[float64]) error {
	if len(e.opts.PeakOverride) > 0 {
		if len(e.opts.PeakOverride) != 3 {
			return fmt.Errorf("%w: peak position needs 3 integers, got %v", models.ErrInvalidConfiguration, e.opts.PeakOverride)
		}
		for axis, v := range e.opts.PeakOverride {
			if v < 0 || v >= e.shape[axis] {
				return fmt.Errorf("%w: peak position %v outside data of shape %v",
					models.ErrInvalidConfiguration, e.opts.PeakOverride, e.shape)
			}
			e.peak[axis] = v
		}
		e.logger.Printf("Bragg peak position defined by user at (qx, qz, qy): %v", e.peak)
		return nil
	}

	if data.Size() == 0 {
		return nil
	}
	switch e.opts.Centering {
	case CenterOfMass:
		com, ok := data.CenterOfMass()
		if !ok {
			e.logger.Printf("Center of mass undefined for a volume without intensity")
			return nil
		}
		for axis, v := range com {
			e.peak[axis] = int(math.RoundToEven(v))
		}
		e.logger.Printf("Center of mass at (qx, qz, qy): %v", e.peak)
	default:
		copy(e.peak[:], data.ArgMaxAbs())
		e.logger.Printf("Max at (qx, qz, qy): %v", e.peak)
	}
	return nil
}

func (e *engine) degenerate() bool {
	return e.extent[0] == 0 || e.extent[1] == 0 || e.extent[2] == 0
}

// cropSize returns the largest FFT size not above n
func (e *engine) cropSize(axis, n int) (int, error) {
	s := fftsize.NearestAtMost(n, e.maxPrime, e.divisors)
	if s == 0 {
		return 0, fmt.Errorf("%w: no FFT size below %d on axis %d (max prime %d, divisors %v)",
			models.ErrInvalidConfiguration, n, axis, e.maxPrime, e.divisors)
	}
	return s, nil
}

// cropAround returns the range [c - s/2, c - s/2 + s) of axis, which has
// exactly s elements for odd sizes too
func (e *engine) cropAround(axis, center, n int) (int, int, error) {
	s, err := e.cropSize(axis, n)
	if err != nil {
		return 0, 0, err
	}
	lo := center - s/2
	return lo, lo + s, nil
}

// symmetricPad splits the padding of axis to the user size around the peak
func (e *engine) symmetricPad(axis int) (int, int) {
	target := float64(e.opts.PadSize[axis])
	n := float64(e.shape[axis])
	c := float64(e.peak[axis])
	low := int(math.Min(target/2-c, target-n))
	high := int(math.Min(target/2-n+c, target-n))
	return max(low, 0), max(high, 0)
}

// asymmetricPad splits the padding of axis to the next FFT size, favouring
// the low side by one pixel when the difference is odd
func (e *engine) asymmetricPad(axis int) (int, int) {
	n := e.shape[axis]
	target := fftsize.NearestAtLeast(n, e.maxPrime, e.divisors)
	delta := target - n
	low := (delta + delta%2) / 2
	high := (delta+1)/2 - delta%2
	return max(low, 0), max(high, 0)
}

// makePlan computes the crop box and padding of the policy
func (e *engine) makePlan(policy Policy, degenerate bool) (plan, error) {
	var p plan
	full := ndarray.Bounds{Z1: e.shape[0], Y1: e.shape[1], X1: e.shape[2]}

	// detector axes cropped around the peak, rocking axis kept
	cropDetector := func() error {
		b := full
		var err error
		if b.Y0, b.Y1, err = e.cropAround(1, e.peak[1], e.extent[1]); err != nil {
			return err
		}
		if b.X0, b.X1, err = e.cropAround(2, e.peak[2], e.extent[2]); err != nil {
			return err
		}
		p.crop = &b
		return nil
	}

	switch policy {
	case CropSymmetricAll:
		var b ndarray.Bounds
		var err error
		if b.Z0, b.Z1, err = e.cropAround(0, e.peak[0], e.extent[0]); err != nil {
			return p, err
		}
		if b.Y0, b.Y1, err = e.cropAround(1, e.peak[1], e.extent[1]); err != nil {
			return p, err
		}
		if b.X0, b.X1, err = e.cropAround(2, e.peak[2], e.extent[2]); err != nil {
			return p, err
		}
		p.crop = &b

	case CropAsymmetricAll:
		var b ndarray.Bounds
		var err error
		if b.Z0, b.Z1, err = e.cropAround(0, e.shape[0]/2, e.shape[0]); err != nil {
			return p, err
		}
		if b.Y0, b.Y1, err = e.cropAround(1, e.shape[1]/2, e.shape[1]); err != nil {
			return p, err
		}
		if b.X0, b.X1, err = e.cropAround(2, e.shape[2]/2, e.shape[2]); err != nil {
			return p, err
		}
		p.crop = &b

	case PadSymmetricRockingCropDetector:
		if err := cropDetector(); err != nil {
			return p, err
		}
		p.pad[0], p.pad[1] = e.symmetricPad(0)

	case PadAsymmetricRockingCropDetector:
		if err := cropDetector(); err != nil {
			return p, err
		}
		p.pad[0], p.pad[1] = e.asymmetricPad(0)

	case PadSymmetricRockingKeepDetector:
		p.pad[0], p.pad[1] = e.symmetricPad(0)

	case PadAsymmetricRockingKeepDetector:
		p.pad[0], p.pad[1] = e.asymmetricPad(0)

	case PadSymmetricAll:
		for axis := 0; axis < 3; axis++ {
			p.pad[2*axis], p.pad[2*axis+1] = e.symmetricPad(axis)
		}

	case PadAsymmetricAll:
		for axis := 0; axis < 3; axis++ {
			p.pad[2*axis], p.pad[2*axis+1] = e.asymmetricPad(axis)
		}

	case NoOp:
		if degenerate || len(e.opts.FixedBounds) == 0 {
			return p, nil
		}
		b, err := ndarray.BoundsFromSlice(e.opts.FixedBounds)
		if err != nil {
			return p, err
		}
		p.crop = &b

	default:
		return p, fmt.Errorf("%w: policy %d", models.ErrInvalidConfiguration, int(policy))
	}
	p.pad = p.pad.Clamped()
	return p, nil
}

// apply crops then pads data, mask, frames and q according to p
func (e *engine) apply(p plan, data *ndarray.Array[float64], mask *ndarray.Array[uint8], frames models.Provenance, q *models.QGrid) (*Result, error) {
	res := &Result{
		Data:   data.Clone(),
		Mask:   mask.Clone(),
		Frames: frames.Clone(),
		QGrid:  q.Clone(),
	}
	var err error

	if p.crop != nil {
		b := *p.crop
		if res.Data, err = ndarray.Crop3(res.Data, b); err != nil {
			return nil, err
		}
		if res.Mask, err = ndarray.Crop3(res.Mask, b); err != nil {
			return nil, err
		}
		if res.Frames, err = res.Frames.Crop(b.Z0, b.Z1); err != nil {
			return nil, err
		}
		if res.QGrid != nil {
			for axis := 0; axis < 3; axis++ {
				lo, hi := b.Axis(axis)
				if res.QGrid, err = res.QGrid.Slice(axis, lo, hi); err != nil {
					return nil, err
				}
			}
		}
	}

	if !p.pad.IsZero() {
		if res.Data, err = ndarray.ZeroPad(res.Data, p.pad, 0); err != nil {
			return nil, err
		}
		if res.Mask, err = ndarray.ZeroPad(res.Mask, p.pad, 1); err != nil {
			return nil, err
		}
		if res.Frames, err = res.Frames.Pad(p.pad[0], p.pad[1]); err != nil {
			return nil, err
		}
		if res.QGrid != nil {
			for axis := 0; axis < 3; axis++ {
				low, high := p.pad.Axis(axis)
				if low == 0 && high == 0 {
					continue
				}
				if res.QGrid, err = res.QGrid.Extend(axis, low, res.Data.Dim(axis)); err != nil {
					return nil, err
				}
			}
		}
		if n := res.Frames.Count(models.Padded); n > 0 {
			e.logger.Printf("%d padded frames added along the rocking axis", n)
		}
	}
	res.PadWidth = p.pad
	return res, nil
}
