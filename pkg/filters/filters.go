// Package filters implements the statistical pixel filters applied to a
// rocking curve before phasing: removal of pixels whose fluctuations along
// the rocking axis are not compatible with photon counting, and treatment
// of isolated empty pixels surrounded by signal.
package filters

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/ndarray"
)

// PhotonFloor is the neighbourhood photon count above which an empty pixel
// is considered isolated (about 3 photons in each of the 8 neighbours).
const PhotonFloor = 24.0

// MinCount is the photon count of the single-event reference pixel used to
// derive the variance threshold.
const MinCount = 1.0

// VarianceThresholds returns the mean and variance along the rocking axis of
// a pixel that recorded a single photon in one of nz frames.
func VarianceThresholds(nz int) (meanThreshold, varThreshold float64) {
	n := float64(nz)
	meanThreshold = MinCount / n
	varThreshold = ((n-1)*meanThreshold*meanThreshold + (MinCount-meanThreshold)*(MinCount-meanThreshold)) / n
	return meanThreshold, varThreshold
}

// reduceMask returns a 2D (ny, nx) mask from a 2D mask or from a 3D mask
// OR-reduced along its first axis.
func reduceMask(mask *ndarray.Array[uint8], ny, nx int) (*ndarray.Array[uint8], error) {
	if mask == nil {
		return nil, fmt.Errorf("%w: mask is nil", models.ErrShape)
	}
	var flat *ndarray.Array[uint8]
	switch mask.Ndim() {
	case 2:
		flat = mask.Clone()
	case 3:
		summed, err := ndarray.SumAxis(mask, 0)
		if err != nil {
			return nil, err
		}
		flat = ndarray.Map(summed, func(v float64) uint8 {
			if v != 0 {
				return 1
			}
			return 0
		})
	default:
		return nil, fmt.Errorf("%w: mask should be 2D or 3D, got %dD", models.ErrShape, mask.Ndim())
	}
	if flat.Dim(0) != ny || flat.Dim(1) != nx {
		return nil, fmt.Errorf("%w: frames are %dx%d while mask is %v", models.ErrShape, ny, nx, mask.Shape())
	}
	return flat, nil
}

// DetectVarianceOutliers flags pixels whose inverse variance along the
// rocking axis is larger than the one of a single photon event, i.e. pixels
// that fluctuate less than photon counting allows (stuck or hot pixels).
// Pixels with zero mean get the mean of the finite inverse variances.
//
// Parameters:
//   - data: 3D rocking curve (nz, ny, nx)
//   - mask: 2D (ny, nx) mask, or 3D mask OR-reduced along the first axis
//
// Returns:
//   - data with flagged pixels zeroed in every frame
//   - the updated 2D mask
//   - the number of flagged pixels
func DetectVarianceOutliers(data *ndarray.Array[float64], mask *ndarray.Array[uint8]) (*ndarray.Array[float64], *ndarray.Array[uint8], int, error) {
	if err := data.RequireNdim(3, "data"); err != nil {
		return nil, nil, 0, err
	}
	nz, ny, nx := data.Dim(0), data.Dim(1), data.Dim(2)
	outMask, err := reduceMask(mask, ny, nx)
	if err != nil {
		return nil, nil, 0, err
	}

	plane := ny * nx
	src := data.Data()
	means := make([]float64, plane)
	invVar := make([]float64, plane)
	column := make([]float64, nz)

	finiteSum, finiteCount := 0.0, 0
	for i := 0; i < plane; i++ {
		for z := 0; z < nz; z++ {
			column[z] = src[z*plane+i]
		}
		m, v := stat.PopMeanVariance(column, nil)
		means[i] = m
		invVar[i] = 1 / v
		if !math.IsInf(invVar[i], 0) && !math.IsNaN(invVar[i]) {
			finiteSum += invVar[i]
			finiteCount++
		}
	}
	meanInvVar := 0.0
	if finiteCount > 0 {
		meanInvVar = finiteSum / float64(finiteCount)
	}

	_, varThreshold := VarianceThresholds(nz)
	limit := 1 / varThreshold

	outData := data.Clone()
	od, om := outData.Data(), outMask.Data()
	count := 0
	for i := 0; i < plane; i++ {
		iv := invVar[i]
		if means[i] == 0 {
			iv = meanInvVar
		}
		if !(iv > limit) {
			continue
		}
		count++
		om[i] = 1
		for z := 0; z < nz; z++ {
			od[z*plane+i] = 0
		}
	}
	return outData, outMask, count, nil
}

// MeanFilterIsolatedZeros treats empty pixels surrounded by signal. For every
// zero pixel the 3x3 neighbourhood (clipped at the array border) is read
// from the unfiltered input; when its sum exceeds PhotonFloor and at least
// neighbours pixels are non-zero, the pixel is either replaced by the mean of
// the non-zero pixels and unmasked (interpolate) or masked.
//
// data and mask must have the same 2D shape, or the same 3D shape in which
// case every frame is filtered independently. The returned count is the
// number of treated pixels.
func MeanFilterIsolatedZeros(data *ndarray.Array[float64], mask *ndarray.Array[uint8], neighbours int, interpolate bool) (*ndarray.Array[float64], *ndarray.Array[uint8], int, error) {
	if data == nil || mask == nil {
		return nil, nil, 0, fmt.Errorf("%w: data and mask are required", models.ErrShape)
	}
	if !ndarray.SameShape(data, mask) {
		return nil, nil, 0, fmt.Errorf("%w: data is %v while mask is %v", models.ErrShape, data.Shape(), mask.Shape())
	}
	if neighbours < 0 || neighbours > 8 {
		return nil, nil, 0, fmt.Errorf("%w: neighbours should be in [0, 8], got %d", models.ErrInvalidArgument, neighbours)
	}

	var nf, ny, nx int
	switch data.Ndim() {
	case 2:
		nf, ny, nx = 1, data.Dim(0), data.Dim(1)
	case 3:
		nf, ny, nx = data.Dim(0), data.Dim(1), data.Dim(2)
	default:
		return nil, nil, 0, fmt.Errorf("%w: data should be 2D or 3D, got %dD", models.ErrShape, data.Ndim())
	}

	src := data.Data()
	outData := data.Clone()
	outMask := mask.Clone()
	od, om := outData.Data(), outMask.Data()
	count := 0
	for f := 0; f < nf; f++ {
		base := f * ny * nx
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if src[base+y*nx+x] != 0 {
					continue
				}
				sum, nonzero := 0.0, 0
				for yy := max(y-1, 0); yy <= min(y+1, ny-1); yy++ {
					for xx := max(x-1, 0); xx <= min(x+1, nx-1); xx++ {
						v := src[base+yy*nx+xx]
						sum += v
						if v != 0 {
							nonzero++
						}
					}
				}
				if sum <= PhotonFloor || nonzero < neighbours || nonzero == 0 {
					continue
				}
				count++
				off := base + y*nx + x
				if interpolate {
					od[off] = sum / float64(nonzero)
					om[off] = 0
				} else {
					om[off] = 1
				}
			}
		}
	}
	return outData, outMask, count, nil
}
