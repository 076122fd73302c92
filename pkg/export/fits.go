// Package export writes preprocessed datasets to FITS files and reads them
// back, so that later stages (mask editing, apodization) can start from a
// saved product.
//
// Layout of a product file:
//
//	PRIMARY  float64 intensity, BITPIX -64, with the POLICY, PAD* and PEAK* cards
//	MASK     uint8 mask, BITPIX 8
//	FRAMES   int16 frame provenance (1 used, 0 unused, -1 padded)
//	QX QZ QY float64 q vectors, only when the product has a q grid
package export

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/centering"
	"bcdiprep/pkg/ndarray"
)

// Extension names
const (
	ExtMask   = "MASK"
	ExtFrames = "FRAMES"
	ExtQx     = "QX"
	ExtQz     = "QZ"
	ExtQy     = "QY"
)

var padCards = [6]string{"PADZ0", "PADZ1", "PADY0", "PADY1", "PADX0", "PADX1"}

var peakCards = [3]string{"PEAKZ", "PEAKY", "PEAKX"}

// Product is a preprocessed dataset and its resize bookkeeping
type Product struct {
	Data     *ndarray.Array[float64]
	Mask     *ndarray.Array[uint8]
	Frames   models.Provenance
	QGrid    *models.QGrid
	PadWidth models.PadWidth
	Peak     [3]int

	// Policy is the name of the applied centering policy, empty when the
	// product was not centered
	Policy string
}

// FromResult wraps a centering result
func FromResult(res *centering.Result) *Product {
	return &Product{
		Data:     res.Data,
		Mask:     res.Mask,
		Frames:   res.Frames,
		QGrid:    res.QGrid,
		PadWidth: res.PadWidth,
		Peak:     res.Peak,
		Policy:   res.Policy.String(),
	}
}

// Write stores p at path, replacing any existing file. Extra cards are
// appended to the primary header.
func Write(path string, p *Product, extra ...fitsio.Card) error {
	if p == nil || p.Data == nil || p.Mask == nil {
		return fmt.Errorf("%w: incomplete product", models.ErrInvalidArgument)
	}
	if !ndarray.SameShape(p.Data, p.Mask) {
		return fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, p.Data.Shape(), p.Mask.Shape())
	}
	if p.Frames != nil && p.Data.Ndim() == 3 && len(p.Frames) != p.Data.Dim(0) {
		return fmt.Errorf("%w: %d frame tags for %d frames", models.ErrLengthMismatch, len(p.Frames), p.Data.Dim(0))
	}
	if p.QGrid != nil {
		if err := p.QGrid.CheckShape(p.Data.Shape()); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer file.Close()

	fits, err := fitsio.Create(file)
	if err != nil {
		return err
	}
	defer fits.Close()

	cards := make([]fitsio.Card, 0, len(padCards)+len(peakCards)+1+len(extra))
	if p.Policy != "" {
		cards = append(cards, fitsio.Card{Name: "POLICY", Value: p.Policy, Comment: "centering policy"})
	}
	for i, name := range padCards {
		cards = append(cards, fitsio.Card{Name: name, Value: p.PadWidth[i]})
	}
	for i, name := range peakCards {
		cards = append(cards, fitsio.Card{Name: name, Value: p.Peak[i]})
	}
	cards = append(cards, extra...)

	if err := writeHDU(fits, -64, p.Data.Shape(), "", p.Data.Data(), cards...); err != nil {
		return fmt.Errorf("failed to write data: %v", err)
	}
	if err := writeHDU(fits, 8, p.Mask.Shape(), ExtMask, p.Mask.Data()); err != nil {
		return fmt.Errorf("failed to write mask: %v", err)
	}
	if p.Frames != nil {
		tags := make([]int16, len(p.Frames))
		for i, t := range p.Frames {
			tags[i] = int16(t)
		}
		if err := writeHDU(fits, 16, []int{len(tags)}, ExtFrames, tags); err != nil {
			return fmt.Errorf("failed to write frames: %v", err)
		}
	}
	if p.QGrid != nil {
		for axis, name := range []string{ExtQx, ExtQz, ExtQy} {
			comp := p.QGrid.Component(axis)
			if err := writeHDU(fits, -64, []int{len(comp)}, name, comp); err != nil {
				return fmt.Errorf("failed to write %s: %v", name, err)
			}
		}
	}
	return nil
}

// WriteArray stores a single float64 array as the primary HDU of path
func WriteArray(path string, a *ndarray.Array[float64], cards ...fitsio.Card) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer file.Close()

	fits, err := fitsio.Create(file)
	if err != nil {
		return err
	}
	defer fits.Close()
	return writeHDU(fits, -64, a.Shape(), "", a.Data(), cards...)
}

// writeHDU appends one image HDU. shape is row-major; FITS lists the
// fastest axis first.
func writeHDU(fits *fitsio.File, bitpix int, shape []int, name string, values interface{}, cards ...fitsio.Card) error {
	axes := make([]int, len(shape))
	for i, n := range shape {
		axes[len(shape)-1-i] = n
	}
	im := fitsio.NewImage(bitpix, axes)
	defer im.Close()

	if name != "" {
		cards = append([]fitsio.Card{{Name: "EXTNAME", Value: name}}, cards...)
	}
	if len(cards) > 0 {
		if err := im.Header().Append(cards...); err != nil {
			return err
		}
	}
	if err := im.Write(values); err != nil {
		return err
	}
	return fits.Write(im)
}

// Read loads a product written by Write
func Read(path string) (*Product, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer file.Close()

	fits, err := fitsio.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read FITS file %s: %v", path, err)
	}
	defer fits.Close()

	primary, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: primary HDU of %s is not an image", models.ErrShape, path)
	}
	p := &Product{}
	values, shape := make([]float64, imageSize(primary)), imageShape(primary)
	if err := primary.Read(&values); err != nil {
		return nil, fmt.Errorf("failed to read data of %s: %v", path, err)
	}
	if p.Data, err = ndarray.FromSlice(values, shape...); err != nil {
		return nil, err
	}

	hdr := primary.Header()
	if c := hdr.Get("POLICY"); c != nil {
		p.Policy, _ = c.Value.(string)
	}
	for i, name := range padCards {
		p.PadWidth[i] = intCard(hdr, name)
	}
	for i, name := range peakCards {
		p.Peak[i] = intCard(hdr, name)
	}

	if !fits.Has(ExtMask) {
		return nil, fmt.Errorf("%w: %s has no %s extension", models.ErrShape, path, ExtMask)
	}
	maskHDU, ok := fits.Get(ExtMask).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: %s of %s is not an image", models.ErrShape, ExtMask, path)
	}
	mask := make([]uint8, imageSize(maskHDU))
	if err := maskHDU.Read(&mask); err != nil {
		return nil, fmt.Errorf("failed to read mask of %s: %v", path, err)
	}
	if p.Mask, err = ndarray.FromSlice(mask, imageShape(maskHDU)...); err != nil {
		return nil, err
	}
	if !ndarray.SameShape(p.Data, p.Mask) {
		return nil, fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, p.Data.Shape(), p.Mask.Shape())
	}

	if fits.Has(ExtFrames) {
		img, ok := fits.Get(ExtFrames).(fitsio.Image)
		if !ok {
			return nil, fmt.Errorf("%w: %s of %s is not an image", models.ErrShape, ExtFrames, path)
		}
		tags := make([]int16, imageSize(img))
		if err := img.Read(&tags); err != nil {
			return nil, fmt.Errorf("failed to read frames of %s: %v", path, err)
		}
		ints := make([]int, len(tags))
		for i, t := range tags {
			ints[i] = int(t)
		}
		if p.Frames, err = models.ProvenanceFromInts(ints); err != nil {
			return nil, err
		}
	}

	if fits.Has(ExtQx) {
		q := &models.QGrid{}
		for axis, name := range []string{ExtQx, ExtQz, ExtQy} {
			img, ok := fits.Get(name).(fitsio.Image)
			if !ok {
				return nil, fmt.Errorf("%w: %s of %s is missing or not an image", models.ErrShape, name, path)
			}
			comp := make([]float64, imageSize(img))
			if err := img.Read(&comp); err != nil {
				return nil, fmt.Errorf("failed to read %s of %s: %v", name, path, err)
			}
			switch axis {
			case 0:
				q.Qx = comp
			case 1:
				q.Qz = comp
			case 2:
				q.Qy = comp
			}
		}
		if err := q.CheckShape(p.Data.Shape()); err != nil {
			return nil, err
		}
		p.QGrid = q
	}
	return p, nil
}

func imageShape(img fitsio.Image) []int {
	axes := img.Header().Axes()
	shape := make([]int, len(axes))
	for i, n := range axes {
		shape[len(axes)-1-i] = n
	}
	return shape
}

func imageSize(img fitsio.Image) int {
	size := 1
	for _, n := range img.Header().Axes() {
		size *= n
	}
	return size
}

// intCard returns an integer card value, 0 when absent
func intCard(hdr *fitsio.Header, name string) int {
	c := hdr.Get(name)
	if c == nil {
		return 0
	}
	switch v := c.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
