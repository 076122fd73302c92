package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// Extension names of the optional HDUs of a scan file
const (
	ExtMonitor = "MONITOR"
	ExtQx      = "QX"
	ExtQz      = "QZ"
	ExtQy      = "QY"
)

// FITSLoader reads one FITS file per scan. The primary HDU holds the raw
// (nz, ny, nx) frames; the optional MONITOR, QX, QZ and QY image
// extensions hold the monitor and the reciprocal space grid.
type FITSLoader struct {
	Dir         string
	Template    string
	Calibration Calibration
}

// Path returns the file name of a scan
func (l *FITSLoader) Path(scan int) string {
	return filepath.Join(l.Dir, fmt.Sprintf(l.Template, scan))
}

// Load reads and assembles a scan
func (l *FITSLoader) Load(scan int) (*Scan, error) {
	path := l.Path(scan)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan %d: %v", scan, err)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read FITS file %s: %v", path, err)
	}
	defer fits.Close()

	raw, err := readImage(fits.HDU(0), path)
	if err != nil {
		return nil, err
	}
	if err := raw.RequireNdim(3, "raw frames"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	data, mask, err := Assemble(raw, l.Calibration)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble scan %d: %w", scan, err)
	}
	out := &Scan{
		Data:   data,
		Mask:   mask,
		Frames: models.NewProvenance(data.Dim(0)),
	}

	if fits.Has(ExtMonitor) {
		mon, err := readImage(fits.Get(ExtMonitor), path)
		if err != nil {
			return nil, err
		}
		if mon.Size() != data.Dim(0) {
			return nil, fmt.Errorf("%w: %s has %d monitor values for %d frames",
				models.ErrLengthMismatch, path, mon.Size(), data.Dim(0))
		}
		out.Monitor = append([]float64(nil), mon.Data()...)
	}

	if fits.Has(ExtQx) || fits.Has(ExtQz) || fits.Has(ExtQy) {
		q := &models.QGrid{}
		for axis, name := range []string{ExtQx, ExtQz, ExtQy} {
			if !fits.Has(name) {
				return nil, fmt.Errorf("%w: %s has a partial q grid, %s is missing", models.ErrShape, path, name)
			}
			comp, err := readImage(fits.Get(name), path)
			if err != nil {
				return nil, err
			}
			switch axis {
			case 0:
				q.Qx = append([]float64(nil), comp.Data()...)
			case 1:
				q.Qz = append([]float64(nil), comp.Data()...)
			case 2:
				q.Qy = append([]float64(nil), comp.Data()...)
			}
		}
		if err := q.CheckShape(data.Shape()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out.QGrid = q
	}

	return out, nil
}

// readImage decodes an image HDU into a float64 array. FITS axes are listed
// fastest first, so the array shape is their reverse.
func readImage(hdu fitsio.HDU, path string) (*ndarray.Array[float64], error) {
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: HDU %q of %s is not an image", models.ErrShape, hdu.Name(), path)
	}
	axes := img.Header().Axes()
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: HDU %q of %s has no data axes", models.ErrShape, hdu.Name(), path)
	}
	shape := make([]int, len(axes))
	size := 1
	for i, n := range axes {
		shape[len(axes)-1-i] = n
		size *= n
	}

	values := make([]float64, size)
	if err := img.Read(&values); err != nil {
		return nil, fmt.Errorf("failed to read HDU %q of %s: %v", hdu.Name(), path, err)
	}
	return ndarray.FromSlice(values, shape...)
}

// ReadFITSArray reads the primary image of a FITS file
func ReadFITSArray(path string) (*ndarray.Array[float64], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read FITS file %s: %v", path, err)
	}
	defer fits.Close()
	return readImage(fits.HDU(0), path)
}

// ReadHotPixels reads a 2D or 3D hot pixel map
func ReadHotPixels(path string) (*ndarray.Array[float64], error) {
	hot, err := ReadFITSArray(path)
	if err != nil {
		return nil, err
	}
	if hot.Ndim() != 2 && hot.Ndim() != 3 {
		return nil, fmt.Errorf("%w: hot pixel map %s is %dD", models.ErrShape, path, hot.Ndim())
	}
	return hot, nil
}

// ReadFlatfield reads a 2D flatfield
func ReadFlatfield(path string) (*ndarray.Array[float64], error) {
	flat, err := ReadFITSArray(path)
	if err != nil {
		return nil, err
	}
	if err := flat.RequireNdim(2, "flatfield"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flat, nil
}
