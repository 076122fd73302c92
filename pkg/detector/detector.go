// Package detector describes the area detectors used to record rocking
// curves and masks their hardware defects: inter-module gaps and hot pixels.
package detector

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// Detector holds the geometry of an area detector.
type Detector struct {
	// Name is the detector model, used as the key of the gap table
	Name string

	// PixelsY and PixelsX are the full frame dimensions (vertical, horizontal)
	PixelsY int
	PixelsX int

	// PixelSize is the pixel pitch in meters
	PixelSize float64

	// ROI is the region of interest kept from each frame as
	// [ystart, ystop, xstart, xstop]. An empty ROI keeps the full frame.
	ROI []int
}

// region is a rectangle [Y0, Y1) x [X0, X1) of a detector frame
type region struct {
	Y0, Y1, X0, X1 int
}

// rows covers full-width rows [y0, y1)
func rows(y0, y1 int) region { return region{Y0: y0, Y1: y1, X0: 0, X1: -1} }

// cols covers full-height columns [x0, x1)
func cols(x0, x1 int) region { return region{Y0: 0, Y1: -1, X0: x0, X1: x1} }

// known lists the supported detectors and their full frame dimensions
var known = map[string]Detector{
	"Maxipix": {Name: "Maxipix", PixelsY: 516, PixelsX: 516, PixelSize: 55e-6},
	"Eiger2M": {Name: "Eiger2M", PixelsY: 2164, PixelsX: 1030, PixelSize: 75e-6},
	"Eiger4M": {Name: "Eiger4M", PixelsY: 2167, PixelsX: 2070, PixelSize: 75e-6},
}

// gapTable holds the dead regions between detector modules, per model.
// A negative stop means "up to the end of the axis".
var gapTable = map[string][]region{
	"Maxipix": {
		cols(255, 261),
		rows(255, 261),
	},
	"Eiger2M": {
		cols(255, 259),
		cols(513, 517),
		cols(771, 775),
		{Y0: 0, Y1: 257, X0: 72, X1: 80},
		rows(255, 259),
		rows(511, 552),
		rows(804, 809),
		rows(1061, 1102),
		rows(1355, 1359),
		rows(1611, 1652),
		rows(1905, 1909),
		{Y0: 1248, Y1: 1290, X0: 478, X1: 479},
		{Y0: 1214, Y1: 1298, X0: 481, X1: 482},
		{Y0: 1649, Y1: 1910, X0: 620, X1: 628},
	},
	"Eiger4M": {
		cols(1029, 1041),
		rows(513, 552),
		rows(1064, 1103),
		rows(1614, 1654),
	},
}

// Lookup returns the descriptor of a known detector model. The ROI of the
// returned descriptor is empty.
func Lookup(name string) (Detector, error) {
	d, ok := known[name]
	if !ok {
		return Detector{}, fmt.Errorf("%w: %q (known: %s)", models.ErrUnsupportedDetector, name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names returns the supported detector models in alphabetical order
func Names() []string {
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bounds returns the ROI as [ystart, ystop, xstart, xstop], defaulting to the
// full frame, after checking it lies inside the detector.
func (d Detector) Bounds() ([4]int, error) {
	if len(d.ROI) == 0 {
		return [4]int{0, d.PixelsY, 0, d.PixelsX}, nil
	}
	if len(d.ROI) != 4 {
		return [4]int{}, fmt.Errorf("%w: ROI needs 4 integers, got %d", models.ErrInvalidConfiguration, len(d.ROI))
	}
	r := [4]int{d.ROI[0], d.ROI[1], d.ROI[2], d.ROI[3]}
	if r[0] < 0 || r[1] > d.PixelsY || r[0] >= r[1] || r[2] < 0 || r[3] > d.PixelsX || r[2] >= r[3] {
		return [4]int{}, fmt.Errorf("%w: ROI %v outside %dx%d detector %s",
			models.ErrInvalidConfiguration, d.ROI, d.PixelsY, d.PixelsX, d.Name)
	}
	return r, nil
}

// frameShape returns the (rows, cols) of the frames of a 2D or 3D array
func frameShape[T ndarray.Element](a *ndarray.Array[T]) (int, int, int, error) {
	switch a.Ndim() {
	case 2:
		return 1, a.Dim(0), a.Dim(1), nil
	case 3:
		return a.Dim(0), a.Dim(1), a.Dim(2), nil
	default:
		return 0, 0, 0, fmt.Errorf("%w: expected 2D or 3D array, got %dD", models.ErrShape, a.Ndim())
	}
}

func checkPair(data *ndarray.Array[float64], mask *ndarray.Array[uint8]) error {
	if data == nil || mask == nil {
		return fmt.Errorf("%w: data and mask are required", models.ErrShape)
	}
	if !ndarray.SameShape(data, mask) {
		return fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, data.Shape(), mask.Shape())
	}
	return nil
}

// ApplyGaps zeroes and masks the gaps between the modules of the detector
// model, in every frame of a 2D or 3D dataset. The frames must have the full
// detector size; gaps are applied before any ROI crop.
func ApplyGaps(data *ndarray.Array[float64], mask *ndarray.Array[uint8], model string) (*ndarray.Array[float64], *ndarray.Array[uint8], error) {
	gaps, ok := gapTable[model]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no gap table for %q", models.ErrUnsupportedDetector, model)
	}
	if err := checkPair(data, mask); err != nil {
		return nil, nil, err
	}
	nf, ny, nx, err := frameShape(data)
	if err != nil {
		return nil, nil, err
	}
	d := known[model]
	if ny != d.PixelsY || nx != d.PixelsX {
		return nil, nil, fmt.Errorf("%w: %s frames are %dx%d, got %dx%d",
			models.ErrShape, model, d.PixelsY, d.PixelsX, ny, nx)
	}

	outData := data.Clone()
	outMask := mask.Clone()
	od, om := outData.Data(), outMask.Data()
	plane := ny * nx
	for _, g := range gaps {
		y1, x1 := g.Y1, g.X1
		if y1 < 0 {
			y1 = ny
		}
		if x1 < 0 {
			x1 = nx
		}
		for f := 0; f < nf; f++ {
			for y := g.Y0; y < y1; y++ {
				off := f*plane + y*nx
				for x := g.X0; x < x1; x++ {
					od[off+x] = 0
					om[off+x] = 1
				}
			}
		}
	}
	return outData, outMask, nil
}

// BinarizeHotPixels reduces a 2D or 3D hot pixel map to a 2D map of 0/1.
// A 3D map is summed along its first axis; any non-zero pixel is hot.
// A nil logger uses log.Default().
func BinarizeHotPixels(hot *ndarray.Array[float64], logger *log.Logger) (*ndarray.Array[uint8], error) {
	if hot == nil {
		return nil, fmt.Errorf("%w: hot pixel map is nil", models.ErrShape)
	}
	summed := hot
	switch hot.Ndim() {
	case 2:
	case 3:
		if logger == nil {
			logger = log.Default()
		}
		logger.Printf("Hot pixel map is 3D, summing along the first axis")
		s, err := ndarray.SumAxis(hot, 0)
		if err != nil {
			return nil, err
		}
		summed = s
	default:
		return nil, fmt.Errorf("%w: hot pixel map should be 2D or 3D, got %dD", models.ErrShape, hot.Ndim())
	}
	return ndarray.Map(summed, func(v float64) uint8 {
		if v != 0 {
			return 1
		}
		return 0
	}), nil
}

// RemoveHotPixels zeroes and masks the flagged pixels of a 2D or 3D dataset.
// For 3D data the same pixels are removed from every frame.
func RemoveHotPixels(data *ndarray.Array[float64], mask *ndarray.Array[uint8], hot *ndarray.Array[float64], logger *log.Logger) (*ndarray.Array[float64], *ndarray.Array[uint8], error) {
	if err := checkPair(data, mask); err != nil {
		return nil, nil, err
	}
	flags, err := BinarizeHotPixels(hot, logger)
	if err != nil {
		return nil, nil, err
	}
	nf, ny, nx, err := frameShape(data)
	if err != nil {
		return nil, nil, err
	}
	if flags.Dim(0) != ny || flags.Dim(1) != nx {
		return nil, nil, fmt.Errorf("%w: frames are %dx%d while hot pixel map is %v",
			models.ErrShape, ny, nx, flags.Shape())
	}

	outData := data.Clone()
	outMask := mask.Clone()
	od, om := outData.Data(), outMask.Data()
	plane := ny * nx
	for i, h := range flags.Data() {
		if h == 0 {
			continue
		}
		for f := 0; f < nf; f++ {
			od[f*plane+i] = 0
			om[f*plane+i] = 1
		}
	}
	return outData, outMask, nil
}

// CropROI keeps the detector region of interest of every frame of a 2D or
// 3D array.
func CropROI[T ndarray.Element](a *ndarray.Array[T], d Detector) (*ndarray.Array[T], error) {
	r, err := d.Bounds()
	if err != nil {
		return nil, err
	}
	nf, ny, nx, err := frameShape(a)
	if err != nil {
		return nil, err
	}
	if ny != d.PixelsY || nx != d.PixelsX {
		return nil, fmt.Errorf("%w: %s frames are %dx%d, got %dx%d",
			models.ErrShape, d.Name, d.PixelsY, d.PixelsX, ny, nx)
	}
	if a.Ndim() == 2 {
		vol, err := a.Reshape(1, ny, nx)
		if err != nil {
			return nil, err
		}
		out, err := ndarray.Crop3(vol, ndarray.Bounds{Z0: 0, Z1: 1, Y0: r[0], Y1: r[1], X0: r[2], X1: r[3]})
		if err != nil {
			return nil, err
		}
		return out.Reshape(r[1]-r[0], r[3]-r[2])
	}
	return ndarray.Crop3(a, ndarray.Bounds{Z0: 0, Z1: nf, Y0: r[0], Y1: r[1], X0: r[2], X1: r[3]})
}
