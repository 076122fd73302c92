// Package visualization renders detector frames and volume projections as
// colour mapped PNG previews. Intensities span several decades, so values
// are shown on a log scale.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// colormap stops, low to high intensity
var colormap = []colorful.Color{
	{R: 0.267, G: 0.005, B: 0.329},
	{R: 0.229, G: 0.322, B: 0.546},
	{R: 0.128, G: 0.567, B: 0.551},
	{R: 0.369, G: 0.789, B: 0.383},
	{R: 0.993, G: 0.906, B: 0.144},
}

// MaskColor is drawn over masked pixels
var MaskColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// ColorAt maps t in [0, 1] to the colormap, blending neighbouring stops in
// the Lab space so that the lightness ramps evenly
func ColorAt(t float64) color.RGBA {
	if math.IsNaN(t) || t <= 0 {
		return toRGBA(colormap[0])
	}
	if t >= 1 {
		return toRGBA(colormap[len(colormap)-1])
	}
	pos := t * float64(len(colormap)-1)
	i := int(pos)
	return toRGBA(colormap[i].BlendLab(colormap[i+1], pos-float64(i)).Clamped())
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// LogScale maps v to [0, 1] with log10(1+v)/log10(1+vmax). Negative values
// map to 0.
func LogScale(v, vmax float64) float64 {
	if v <= 0 || vmax <= 0 {
		return 0
	}
	return math.Min(math.Log10(1+v)/math.Log10(1+vmax), 1)
}

// Render draws a 2D array with the colormap. vmax <= 0 uses the array
// maximum. mask may be nil; otherwise masked pixels are drawn in MaskColor.
func Render(frame *ndarray.Array[float64], mask *ndarray.Array[uint8], vmax float64) (*image.RGBA, error) {
	if err := frame.RequireNdim(2, "frame"); err != nil {
		return nil, err
	}
	if mask != nil && !ndarray.SameShape(frame, mask) {
		return nil, fmt.Errorf("%w: frame is %v while mask is %v", models.ErrShape, frame.Shape(), mask.Shape())
	}
	if vmax <= 0 {
		vmax = frame.Max()
	}

	rows, cols := frame.Dim(0), frame.Dim(1)
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	fd := frame.Data()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			off := y*cols + x
			if mask != nil && mask.Data()[off] != 0 {
				img.SetRGBA(x, y, MaskColor)
				continue
			}
			img.SetRGBA(x, y, ColorAt(LogScale(fd[off], vmax)))
		}
	}
	return img, nil
}

// Viewer renders previews of a 3D volume and its optional mask
type Viewer struct {
	data *ndarray.Array[float64]
	mask *ndarray.Array[uint8]
}

// NewViewer creates a viewer on a 3D volume; mask may be nil
func NewViewer(data *ndarray.Array[float64], mask *ndarray.Array[uint8]) (*Viewer, error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, err
	}
	if mask != nil && !ndarray.SameShape(data, mask) {
		return nil, fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, data.Shape(), mask.Shape())
	}
	return &Viewer{data: data, mask: mask}, nil
}

// parseAxis maps "z", "y" and "x" to array axes 0, 1 and 2
func parseAxis(axis string) (int, error) {
	switch axis {
	case "z", "Z":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "x", "X":
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: invalid axis %q (must be z, y or x)", models.ErrInvalidArgument, axis)
	}
}

// ExtractSlice renders the plane at position along axis, with the mask
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	a, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= v.data.Dim(a) {
		return nil, fmt.Errorf("%w: position %d outside axis %s of length %d",
			models.ErrInvalidArgument, position, axis, v.data.Dim(a))
	}
	frame, err := ndarray.Frame(v.data, a, position)
	if err != nil {
		return nil, err
	}
	var mask *ndarray.Array[uint8]
	if v.mask != nil {
		if mask, err = ndarray.Frame(v.mask, a, position); err != nil {
			return nil, err
		}
	}
	return Render(frame, mask, v.data.Max())
}

// Projection renders the sum of the volume along axis. Masked voxels do
// not contribute.
func (v *Viewer) Projection(axis string) (image.Image, error) {
	a, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	data := v.data
	if v.mask != nil {
		data = data.Clone()
		dd := data.Data()
		for i, m := range v.mask.Data() {
			if m != 0 {
				dd[i] = 0
			}
		}
	}
	sum, err := ndarray.SumAxis(data, a)
	if err != nil {
		return nil, err
	}
	return Render(sum, nil, 0)
}

// SaveSlice writes an image as PNG
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return SavePNG(img, filename)
}

// SavePNG writes an image as PNG, creating the parent directory
func SavePNG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence renders every plane along axis into outputDir
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := parseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.data.Dim(a); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveProjections writes the three sums of the volume into outputDir as
// sum_z.png, sum_y.png and sum_x.png
func (v *Viewer) SaveProjections(outputDir string) error {
	for _, axis := range []string{"z", "y", "x"} {
		img, err := v.Projection(axis)
		if err != nil {
			return err
		}
		if err := SavePNG(img, filepath.Join(outputDir, "sum_"+axis+".png")); err != nil {
			return err
		}
	}
	return nil
}
