// Package loader reads raw rocking curves from disk and assembles them into
// a masked 3D dataset ready for centering.
//
// One Loader variant exists per file layout. The variant is chosen once
// from the configuration with New; the rest of the pipeline only sees the
// Loader interface.
package loader

import (
	"fmt"
	"log"
	"math"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/detector"
	"bcdiprep/pkg/filters"
	"bcdiprep/pkg/ndarray"
)

// Scan is one assembled rocking curve
type Scan struct {
	// Data is the (nz, ny, nx) intensity after calibration and ROI crop
	Data *ndarray.Array[float64]

	// Mask has the shape of Data, 1 for excluded voxels
	Mask *ndarray.Array[uint8]

	// Frames starts with one Used entry per measured frame
	Frames models.Provenance

	// Monitor holds one incident beam value per measured frame; nil when
	// the scan has no monitor
	Monitor []float64

	// QGrid is the reciprocal space grid when the file provides one
	QGrid *models.QGrid
}

// Loader reads scans by number
type Loader interface {
	Load(scan int) (*Scan, error)
}

// Kind names a loader variant in the configuration
type Kind string

const (
	// KindFITS reads one FITS cube per scan
	KindFITS Kind = "fits"
	// KindTIFF reads one directory of TIFF frames per scan
	KindTIFF Kind = "tiff"
)

// Settings configures a loader
type Settings struct {
	Kind Kind

	// DataDir is the directory holding the scans
	DataDir string

	// Template is formatted with the scan number to name the FITS file or
	// the TIFF frame directory, e.g. "scan_%04d.fits" or "S%d"
	Template string

	// MonitorFile names the monitor text file inside a TIFF scan directory
	MonitorFile string

	Calibration Calibration
}

// Calibration holds the detector corrections applied to every frame
type Calibration struct {
	Detector detector.Detector

	// HotPixels is an optional 2D or 3D hot pixel map of full frame size
	HotPixels *ndarray.Array[float64]

	// Flatfield is an optional 2D multiplicative correction of full frame size
	Flatfield *ndarray.Array[float64]

	// VarianceOutliers enables the photon statistics check
	VarianceOutliers bool

	// Logger receives diagnostics; nil uses log.Default()
	Logger *log.Logger
}

func (c Calibration) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

// New returns the loader variant selected by s.Kind
func New(s Settings) (Loader, error) {
	if s.Template == "" {
		return nil, fmt.Errorf("%w: loader template is empty", models.ErrInvalidConfiguration)
	}
	switch s.Kind {
	case KindFITS:
		return &FITSLoader{Dir: s.DataDir, Template: s.Template, Calibration: s.Calibration}, nil
	case KindTIFF:
		monitor := s.MonitorFile
		if monitor == "" {
			monitor = DefaultMonitorFile
		}
		return &TIFFStackLoader{Dir: s.DataDir, Template: s.Template, MonitorFile: monitor, Calibration: s.Calibration}, nil
	default:
		return nil, fmt.Errorf("%w: unknown loader kind %q (expected %q or %q)",
			models.ErrInvalidConfiguration, s.Kind, KindFITS, KindTIFF)
	}
}

// Assemble applies the detector corrections to raw full-size frames:
// hot pixels, module gaps, flatfield, ROI crop, then optionally the photon
// statistics check. The resulting 2D mask is repeated along the rocking
// axis and NaN voxels are zeroed and masked.
func Assemble(raw *ndarray.Array[float64], cal Calibration) (*ndarray.Array[float64], *ndarray.Array[uint8], error) {
	if err := raw.RequireNdim(3, "raw frames"); err != nil {
		return nil, nil, err
	}
	logger := cal.logger()
	nz, ny, nx := raw.Dim(0), raw.Dim(1), raw.Dim(2)

	data := raw
	mask, err := ndarray.New[uint8](nz, ny, nx)
	if err != nil {
		return nil, nil, err
	}

	if cal.HotPixels != nil {
		if data, mask, err = detector.RemoveHotPixels(data, mask, cal.HotPixels, logger); err != nil {
			return nil, nil, err
		}
	}
	if data, mask, err = detector.ApplyGaps(data, mask, cal.Detector.Name); err != nil {
		return nil, nil, err
	}
	if cal.Flatfield != nil {
		if data, err = applyFlatfield(data, cal.Flatfield); err != nil {
			return nil, nil, err
		}
	}
	if data, err = detector.CropROI(data, cal.Detector); err != nil {
		return nil, nil, err
	}
	if mask, err = detector.CropROI(mask, cal.Detector); err != nil {
		return nil, nil, err
	}

	var mask2D *ndarray.Array[uint8]
	if cal.VarianceOutliers {
		var count int
		if data, mask2D, count, err = filters.DetectVarianceOutliers(data, mask); err != nil {
			return nil, nil, err
		}
		logger.Printf("%d bad pixels were masked on a total of %d", count, mask2D.Size())
	} else {
		if mask2D, err = flattenMask(mask); err != nil {
			return nil, nil, err
		}
	}

	mask3D, err := ndarray.Broadcast(mask2D, nz)
	if err != nil {
		return nil, nil, err
	}
	data = data.Clone()
	dd, md := data.Data(), mask3D.Data()
	nan := 0
	for i, v := range dd {
		if math.IsNaN(v) {
			dd[i] = 0
			md[i] = 1
			nan++
		}
	}
	if nan > 0 {
		logger.Printf("%d NaN voxels were masked", nan)
	}
	return data, mask3D, nil
}

// applyFlatfield multiplies every frame by a 2D flatfield
func applyFlatfield(data, flat *ndarray.Array[float64]) (*ndarray.Array[float64], error) {
	if err := flat.RequireNdim(2, "flatfield"); err != nil {
		return nil, err
	}
	if flat.Dim(0) != data.Dim(1) || flat.Dim(1) != data.Dim(2) {
		return nil, fmt.Errorf("%w: frames are %dx%d while flatfield is %v",
			models.ErrShape, data.Dim(1), data.Dim(2), flat.Shape())
	}
	out := data.Clone()
	od, fd := out.Data(), flat.Data()
	plane := len(fd)
	for i := range od {
		od[i] *= fd[i%plane]
	}
	return out, nil
}

// flattenMask OR-reduces a 3D mask along the rocking axis
func flattenMask(mask *ndarray.Array[uint8]) (*ndarray.Array[uint8], error) {
	summed, err := ndarray.SumAxis(mask, 0)
	if err != nil {
		return nil, err
	}
	return ndarray.Map(summed, func(v float64) uint8 {
		if v != 0 {
			return 1
		}
		return 0
	}), nil
}
