// Package normalize rescales the frames of a rocking curve by the incident
// beam monitor so that intensity fluctuations of the source cancel out.
package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// AlignMonitor builds the monitor vector of the frames present in the
// dataset: Unused frames are skipped, Used frames take their raw value and
// Padded frames take the raw minimum (toMin) or maximum.
func AlignMonitor(raw []float64, frames models.Provenance, toMin bool) ([]float64, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty monitor", models.ErrLengthMismatch)
	}
	synthetic := floats.Max(raw)
	if toMin {
		synthetic = floats.Min(raw)
	}

	aligned := make([]float64, 0, frames.Active())
	padded := 0
	for i, tag := range frames {
		switch tag {
		case models.Padded:
			aligned = append(aligned, synthetic)
			padded++
		case models.Used:
			idx := i - padded
			if idx >= len(raw) {
				return nil, fmt.Errorf("%w: frame %d needs monitor value %d but only %d were recorded",
					models.ErrLengthMismatch, i, idx, len(raw))
			}
			aligned = append(aligned, raw[idx])
		}
	}
	return aligned, nil
}

// Normalize multiplies every frame of vol by its monitor scale factor:
// min(monitor)/monitor when toMin, which does not amplify the noise, or
// monitor/max(monitor) otherwise.
//
// Returns the normalized volume and the scale factors, one per frame.
func Normalize(vol *ndarray.Array[float64], raw []float64, frames models.Provenance, toMin bool) (*ndarray.Array[float64], []float64, error) {
	if err := vol.RequireNdim(3, "volume"); err != nil {
		return nil, nil, err
	}
	monitor, err := AlignMonitor(raw, frames, toMin)
	if err != nil {
		return nil, nil, err
	}
	nz := vol.Dim(0)
	if len(monitor) != nz {
		return nil, nil, fmt.Errorf("%w: got %d frames but %d monitor values", models.ErrLengthMismatch, nz, len(monitor))
	}
	if nz == 0 {
		return vol.Clone(), []float64{}, nil
	}
	for i, m := range monitor {
		if m <= 0 {
			return nil, nil, fmt.Errorf("%w: monitor value %g for frame %d", models.ErrInvalidConfiguration, m, i)
		}
	}

	scale := make([]float64, nz)
	if toMin {
		lo := floats.Min(monitor)
		for i, m := range monitor {
			scale[i] = lo / m
		}
	} else {
		hi := floats.Max(monitor)
		for i, m := range monitor {
			scale[i] = m / hi
		}
	}

	out := vol.Clone()
	data := out.Data()
	plane := vol.Size() / max(nz, 1)
	for z := 0; z < nz; z++ {
		floats.Scale(scale[z], data[z*plane:(z+1)*plane])
	}
	return out, scale, nil
}
