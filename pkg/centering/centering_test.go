package centering

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bcdiprep/internal/models"
	"bcdiprep/pkg/fftsize"
	"bcdiprep/pkg/ndarray"
)

var quiet = log.New(io.Discard, "", 0)

// createTestDataset builds a volume with a sharp peak, an empty mask, an
// all-used provenance vector and a linear q-grid
func createTestDataset(t *testing.T, shape [3]int, peak [3]int) (*ndarray.Array[float64], *ndarray.Array[uint8], models.Provenance, *models.QGrid) {
	t.Helper()
	data, err := ndarray.Full(1.0, shape[0], shape[1], shape[2])
	if err != nil {
		t.Fatalf("Failed to allocate data: %v", err)
	}
	data.Set(1000, peak[0], peak[1], peak[2])
	mask, _ := ndarray.New[uint8](shape[0], shape[1], shape[2])

	q := &models.QGrid{}
	q.Qx = linear(shape[0], -0.5, 0.01)
	q.Qz = linear(shape[1], 1.0, 0.002)
	q.Qy = linear(shape[2], 0.3, -0.003)
	return data, mask, models.NewProvenance(shape[0]), q
}

func linear(n int, start, step float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = start + float64(i)*step
	}
	return v
}

func TestParsePolicy(t *testing.T) {
	for _, p := range Policies() {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}

	tests := map[string]Policy{
		"crop_symmetric_ZYX":              CropSymmetricAll,
		"pad_asymmetric_Z_crop_YX":        PadAsymmetricRockingCropDetector,
		"PadSymmetricRockingKeepDetector": PadSymmetricRockingKeepDetector,
		"noop":                            NoOp,
		" do_nothing ":                    NoOp,
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		if err != nil {
			t.Errorf("ParsePolicy(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePolicy(%q): expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParsePolicy("crop_everything"); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}

	var p Policy
	if err := p.UnmarshalText([]byte("pad_symmetric_ZYX")); err != nil || p != PadSymmetricAll {
		t.Errorf("UnmarshalText: got %v, %v", p, err)
	}
}

func TestParseCenteringMode(t *testing.T) {
	if m, err := ParseCenteringMode("max"); err != nil || m != Max {
		t.Errorf("Expected Max, got %v (%v)", m, err)
	}
	if m, err := ParseCenteringMode("COM"); err != nil || m != CenterOfMass {
		t.Errorf("Expected CenterOfMass, got %v (%v)", m, err)
	}
	if _, err := ParseCenteringMode("median"); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

// TestCropAsymmetricAll checks the output size is the largest FFT size per axis
func TestCropAsymmetricAll(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{11, 16, 23}, [3]int{5, 8, 8})

	res, err := CenterFFT(data, mask, frames, q, Options{Policy: CropAsymmetricAll, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}

	want := fftsize.NearestAtMostEach([]int{11, 16, 23}, fftsize.EngineMaxPrime, fftsize.EngineDivisors)
	if diff := cmp.Diff(want, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	if !res.PadWidth.IsZero() {
		t.Errorf("Crop policies should not pad, got %v", res.PadWidth)
	}
	// z: 11/2 - 10/2 = 0, so the last frame is dropped
	if diff := cmp.Diff([]int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0}, res.Frames.Ints()); diff != "" {
		t.Errorf("Frames mismatch (-want +got):\n%s", diff)
	}
	// x: 23/2 - 20/2 = 1
	if res.QGrid.Qy[0] != q.Qy[1] || len(res.QGrid.Qy) != 20 {
		t.Errorf("q-grid should be sliced from index 1, got %v", res.QGrid.Qy[:2])
	}
}

// TestCropSymmetricAll checks the crop box is centered on the peak
func TestCropSymmetricAll(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 16, 16}, [3]int{3, 8, 5})

	res, err := CenterFFT(data, mask, frames, q, Options{Policy: CropSymmetricAll, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if res.Peak != [3]int{3, 8, 5} {
		t.Errorf("Expected peak (3, 8, 5), got %v", res.Peak)
	}
	// extents 2*min(3, 7), 2*min(8, 8), 2*min(5, 11)
	if diff := cmp.Diff([]int{6, 16, 10}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	if res.Data.At(3, 8, 5) != 1000 {
		t.Error("Peak should stay at the center of the cropped box")
	}
	if diff := cmp.Diff([]int{1, 1, 1, 1, 1, 1, 0, 0, 0, 0}, res.Frames.Ints()); diff != "" {
		t.Errorf("Frames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(q.Qx[:6], res.QGrid.Qx); diff != "" {
		t.Errorf("Qx mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(q.Qy[:10], res.QGrid.Qy); diff != "" {
		t.Errorf("Qy mismatch (-want +got):\n%s", diff)
	}
}

// TestCropOddSize uses a constraint whose crop sizes are odd: the box must
// keep exactly the FFT size on every axis
func TestCropOddSize(t *testing.T) {
	opts := Options{MaxPrime: 5, Divisors: []int{5}, Logger: quiet}

	data, mask, frames, q := createTestDataset(t, [3]int{15, 15, 15}, [3]int{7, 7, 7})
	opts.Policy = CropAsymmetricAll
	res, err := CenterFFT(data, mask, frames, q, opts)
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if diff := cmp.Diff([]int{15, 15, 15}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	for axis, n := range res.Data.Shape() {
		if !fftsize.Satisfies(n, 5, []int{5}) {
			t.Errorf("Axis %d size %d violates the FFT constraint", axis, n)
		}
	}
	if len(res.QGrid.Qx) != 15 || len(res.Frames) != 15 {
		t.Errorf("Expected 15 q values and frames, got %d and %d", len(res.QGrid.Qx), len(res.Frames))
	}

	// extents 2*min(8, 8) = 16 crop to 15 around the peak, from index 1
	data, mask, frames, q = createTestDataset(t, [3]int{16, 16, 16}, [3]int{8, 8, 8})
	opts.Policy = CropSymmetricAll
	res, err = CenterFFT(data, mask, frames, q, opts)
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if diff := cmp.Diff([]int{15, 15, 15}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	if res.Data.At(7, 7, 7) != 1000 {
		t.Error("Peak should move to index 7 of the cropped box")
	}
	if diff := cmp.Diff(q.Qy[1:], res.QGrid.Qy); diff != "" {
		t.Errorf("Qy mismatch (-want +got):\n%s", diff)
	}
}

// TestPadSymmetricAll pads a (10,12,12) volume centered on its peak to 16^3
func TestPadSymmetricAll(t *testing.T) {
	shape := [3]int{10, 12, 12}
	peak := [3]int{5, 6, 6}
	padSize := []int{16, 16, 16}
	data, mask, frames, q := createTestDataset(t, shape, peak)

	res, err := CenterFFT(data, mask, frames, q, Options{Policy: PadSymmetricAll, PadSize: padSize, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}

	var want models.PadWidth
	for axis := 0; axis < 3; axis++ {
		p, n, c := padSize[axis], shape[axis], peak[axis]
		want[2*axis] = max(min(p/2-c, p-n), 0)
		want[2*axis+1] = max(min(p/2-n+c, p-n), 0)
	}
	if res.PadWidth != want {
		t.Errorf("Expected pad width %v, got %v", want, res.PadWidth)
	}
	if res.PadWidth != (models.PadWidth{3, 3, 2, 2, 2, 2}) {
		t.Errorf("Expected pad width (3,3,2,2,2,2), got %v", res.PadWidth)
	}
	if diff := cmp.Diff([]int{16, 16, 16}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}

	// padded voxels are masked, measured ones are not
	if res.Mask.At(0, 0, 0) != 1 || res.Mask.At(15, 8, 8) != 1 || res.Mask.At(8, 0, 8) != 1 {
		t.Error("Padded voxels should be masked")
	}
	if res.Mask.At(3, 2, 2) != 0 || res.Mask.At(12, 13, 13) != 0 {
		t.Error("Measured voxels should not be masked")
	}
	if res.Data.At(8, 8, 8) != 1000 {
		t.Error("Peak should be found at its original position plus the low padding")
	}

	if diff := cmp.Diff([]int{-1, -1, -1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, -1, -1, -1}, res.Frames.Ints()); diff != "" {
		t.Errorf("Frames mismatch (-want +got):\n%s", diff)
	}
	if err := res.QGrid.CheckShape(res.Data.Shape()); err != nil {
		t.Errorf("q-grid not co-registered: %v", err)
	}
	if math.Abs(res.QGrid.Qx[3]-q.Qx[0]) > 1e-12 || math.Abs(res.QGrid.Qz[0]-(q.Qz[0]-2*0.002)) > 1e-12 {
		t.Errorf("q-grid should be extrapolated at the original spacing, got qx[3]=%f qz[0]=%f",
			res.QGrid.Qx[3], res.QGrid.Qz[0])
	}
}

// TestPadSymmetricRockingCropDetector pads z around an off-center peak
func TestPadSymmetricRockingCropDetector(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 20, 20}, [3]int{2, 10, 7})

	res, err := CenterFFT(data, mask, frames, q, Options{
		Policy:  PadSymmetricRockingCropDetector,
		PadSize: []int{16, 16, 16},
		Logger:  quiet,
	})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	// z: low = min(8-2, 6) = 6, high = min(8-10+2, 6) = 0
	if res.PadWidth != (models.PadWidth{6, 0, 0, 0, 0, 0}) {
		t.Errorf("Expected pad width (6,0,0,0,0,0), got %v", res.PadWidth)
	}
	// y, x cropped to 2*min(10,10)=20 and 2*min(7,13)=14
	if diff := cmp.Diff([]int{16, 20, 14}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	if res.Data.At(8, 10, 7) != 1000 {
		t.Error("Peak not found at the expected position")
	}
	if len(res.Frames) != 16 || res.Frames.Count(models.Padded) != 6 {
		t.Errorf("Expected 6 padded frames out of 16, got %v", res.Frames.Ints())
	}
	if len(res.QGrid.Qx) != 16 || len(res.QGrid.Qy) != 14 {
		t.Errorf("Unexpected q-grid lengths %d, %d", len(res.QGrid.Qx), len(res.QGrid.Qy))
	}
}

// TestPadAsymmetricSplit checks the near even split that favours the low side
func TestPadAsymmetricSplit(t *testing.T) {
	tests := []struct {
		nz   int
		want [2]int
	}{
		{11, [2]int{1, 0}}, // 12
		{17, [2]int{1, 0}}, // 18
		{22, [2]int{1, 1}}, // 24
		{10, [2]int{0, 0}}, // already valid
		{37, [2]int{2, 1}}, // 40
		{43, [2]int{3, 2}}, // 48
	}

	for _, tc := range tests {
		data, mask, frames, q := createTestDataset(t, [3]int{tc.nz, 8, 8}, [3]int{tc.nz / 2, 4, 4})
		res, err := CenterFFT(data, mask, frames, q, Options{Policy: PadAsymmetricRockingKeepDetector, Logger: quiet})
		if err != nil {
			t.Fatalf("CenterFFT(nz=%d) failed: %v", tc.nz, err)
		}
		target := fftsize.NearestAtLeast(tc.nz, fftsize.EngineMaxPrime, fftsize.EngineDivisors)
		if res.Data.Dim(0) != target {
			t.Errorf("nz=%d: expected %d frames, got %d", tc.nz, target, res.Data.Dim(0))
		}
		if got := [2]int{res.PadWidth[0], res.PadWidth[1]}; got != tc.want {
			t.Errorf("nz=%d: expected split %v, got %v", tc.nz, tc.want, got)
		}
		if res.Data.Dim(1) != 8 || res.Data.Dim(2) != 8 {
			t.Errorf("nz=%d: detector axes should be kept, got %v", tc.nz, res.Data.Shape())
		}
		if len(res.QGrid.Qx) != target {
			t.Errorf("nz=%d: qx should have %d samples, got %d", tc.nz, target, len(res.QGrid.Qx))
		}
	}
}

// TestPolicyInvariants runs every policy on the same dataset and checks the
// size, provenance and q-grid invariants
func TestPolicyInvariants(t *testing.T) {
	shape := [3]int{12, 18, 21}
	peak := [3]int{5, 9, 7}
	padSize := []int{16, 24, 28}

	for _, policy := range Policies() {
		data, mask, frames, q := createTestDataset(t, shape, peak)
		res, err := CenterFFT(data, mask, frames, q, Options{Policy: policy, PadSize: padSize, Logger: quiet})
		if err != nil {
			t.Fatalf("%s: CenterFFT failed: %v", policy, err)
		}
		out := res.Data.Shape()

		if !ndarray.SameShape(res.Data, res.Mask) {
			t.Errorf("%s: data %v and mask %v differ", policy, out, res.Mask.Shape())
		}
		if res.Frames.Active() != out[0] {
			t.Errorf("%s: %d active frames for %d frames", policy, res.Frames.Active(), out[0])
		}
		if policy.IsPad() && len(res.Frames) != out[0] {
			t.Errorf("%s: provenance length %d for %d frames", policy, len(res.Frames), out[0])
		}
		if err := res.QGrid.CheckShape(out); err != nil {
			t.Errorf("%s: %v", policy, err)
		}

		switch policy {
		case CropSymmetricAll, CropAsymmetricAll:
			for axis := 0; axis < 3; axis++ {
				if out[axis] > shape[axis] {
					t.Errorf("%s: axis %d grew from %d to %d", policy, axis, shape[axis], out[axis])
				}
				if !fftsize.Satisfies(out[axis], fftsize.EngineMaxPrime, fftsize.EngineDivisors) {
					t.Errorf("%s: axis %d size %d is not FFT friendly", policy, axis, out[axis])
				}
			}
		case PadSymmetricRockingKeepDetector, PadAsymmetricRockingKeepDetector, PadSymmetricAll, PadAsymmetricAll:
			for axis := 0; axis < 3; axis++ {
				if out[axis] < shape[axis] {
					t.Errorf("%s: axis %d shrank from %d to %d", policy, axis, shape[axis], out[axis])
				}
			}
		case PadSymmetricRockingCropDetector, PadAsymmetricRockingCropDetector:
			if out[0] < shape[0] || out[1] > shape[1] || out[2] > shape[2] {
				t.Errorf("%s: unexpected shape %v", policy, out)
			}
		case NoOp:
			if diff := cmp.Diff(shape[:], out); diff != "" {
				t.Errorf("%s: shape changed (-want +got):\n%s", policy, diff)
			}
		}
		if res.Policy != policy {
			t.Errorf("Expected effective policy %s, got %s", policy, res.Policy)
		}
	}
}

func TestInputsNotModified(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 12, 12}, [3]int{5, 6, 6})
	before := data.Clone()
	qBefore := q.Clone()

	_, err := CenterFFT(data, mask, frames, q, Options{Policy: PadSymmetricAll, PadSize: []int{16, 16, 16}, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if diff := cmp.Diff(before.Data(), data.Data()); diff != "" {
		t.Errorf("Data was modified (-want +got):\n%s", diff)
	}
	if mask.Sum() != 0 || frames.Count(models.Padded) != 0 || len(frames) != 10 {
		t.Error("Mask or frames were modified")
	}
	if diff := cmp.Diff(qBefore, q); diff != "" {
		t.Errorf("q-grid was modified (-want +got):\n%s", diff)
	}
}

// TestDegenerateBox checks that a peak on the border disables resizing
func TestDegenerateBox(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 12, 12}, [3]int{0, 6, 6})

	res, err := CenterFFT(data, mask, frames, q, Options{
		Policy:      CropSymmetricAll,
		FixedBounds: []int{0, 4, 0, 4, 0, 4},
		Logger:      quiet,
	})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if res.Policy != NoOp {
		t.Errorf("Expected NoOp, got %s", res.Policy)
	}
	if diff := cmp.Diff([]int{10, 12, 12}, res.Data.Shape()); diff != "" {
		t.Errorf("Shape should be unchanged (-want +got):\n%s", diff)
	}
	if !res.PadWidth.IsZero() || res.Frames.Count(models.Used) != 10 {
		t.Error("Degenerate box should pass the dataset through")
	}

	empty, _ := ndarray.New[float64](4, 4, 4)
	emptyMask, _ := ndarray.New[uint8](4, 4, 4)
	res, err = CenterFFT(empty, emptyMask, models.NewProvenance(4), nil, Options{
		Centering: CenterOfMass,
		Policy:    PadAsymmetricAll,
		Logger:    quiet,
	})
	if err != nil {
		t.Fatalf("CenterFFT of an empty volume failed: %v", err)
	}
	if res.Policy != NoOp || res.QGrid != nil {
		t.Errorf("Expected NoOp without q-grid, got %s", res.Policy)
	}
}

func TestNoOpFixedBounds(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 12, 12}, [3]int{5, 6, 6})

	res, err := CenterFFT(data, mask, frames, q, Options{
		Policy:      NoOp,
		FixedBounds: []int{2, 8, 1, 11, 0, 12},
		Logger:      quiet,
	})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if diff := cmp.Diff([]int{6, 10, 12}, res.Data.Shape()); diff != "" {
		t.Errorf("Unexpected shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 0, 1, 1, 1, 1, 1, 1, 0, 0}, res.Frames.Ints()); diff != "" {
		t.Errorf("Frames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(q.Qz[1:11], res.QGrid.Qz); diff != "" {
		t.Errorf("Qz mismatch (-want +got):\n%s", diff)
	}

	_, err = CenterFFT(data, mask, frames, q, Options{
		Policy:      NoOp,
		FixedBounds: []int{0, 11, 0, 12, 0, 12},
		Logger:      quiet,
	})
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for bounds outside the data, got %v", err)
	}

	res, err = CenterFFT(data, mask, frames, nil, Options{Policy: NoOp, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT without bounds failed: %v", err)
	}
	if diff := cmp.Diff(data.Data(), res.Data.Data()); diff != "" {
		t.Errorf("NoOp should pass the data through (-want +got):\n%s", diff)
	}
}

func TestPeakSelection(t *testing.T) {
	data, mask, frames, _ := createTestDataset(t, [3]int{10, 12, 12}, [3]int{5, 6, 6})

	// a negative outlier has the largest absolute value
	data.Set(-5000, 4, 5, 7)
	res, err := CenterFFT(data, mask, frames, nil, Options{Policy: NoOp, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if res.Peak != [3]int{4, 5, 7} {
		t.Errorf("Expected peak at the largest absolute value (4, 5, 7), got %v", res.Peak)
	}

	res, err = CenterFFT(data, mask, frames, nil, Options{Policy: NoOp, PeakOverride: []int{3, 3, 3}, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if res.Peak != [3]int{3, 3, 3} {
		t.Errorf("Expected overridden peak, got %v", res.Peak)
	}

	// two equal voxels: the centroid lies half way, 2.5 rounds to 2
	com, _ := ndarray.New[float64](8, 8, 8)
	com.Set(1, 2, 4, 4)
	com.Set(1, 3, 4, 4)
	comMask, _ := ndarray.New[uint8](8, 8, 8)
	res, err = CenterFFT(com, comMask, models.NewProvenance(8), nil, Options{Centering: CenterOfMass, Policy: NoOp, Logger: quiet})
	if err != nil {
		t.Fatalf("CenterFFT failed: %v", err)
	}
	if res.Peak != [3]int{2, 4, 4} {
		t.Errorf("Expected center of mass (2, 4, 4), got %v", res.Peak)
	}
}

func TestValidation(t *testing.T) {
	data, mask, frames, q := createTestDataset(t, [3]int{10, 12, 12}, [3]int{5, 6, 6})
	flat, _ := ndarray.New[float64](12, 12)
	otherMask, _ := ndarray.New[uint8](10, 12, 11)

	tests := []struct {
		name   string
		data   *ndarray.Array[float64]
		mask   *ndarray.Array[uint8]
		frames models.Provenance
		q      *models.QGrid
		opts   Options
		want   error
	}{
		{"2D data", flat, mask, frames, nil, Options{Policy: NoOp}, models.ErrShape},
		{"mask shape", data, otherMask, frames, nil, Options{Policy: NoOp}, models.ErrShape},
		{"q length", data, mask, frames, &models.QGrid{Qx: q.Qx, Qz: q.Qz, Qy: q.Qy[:5]}, Options{Policy: NoOp}, models.ErrShape},
		{"frames", data, mask, models.NewProvenance(9), nil, Options{Policy: NoOp}, models.ErrLengthMismatch},
		{"no policy", data, mask, frames, nil, Options{}, models.ErrInvalidConfiguration},
		{"pad size missing", data, mask, frames, nil, Options{Policy: PadSymmetricAll}, models.ErrInvalidConfiguration},
		{"pad size length", data, mask, frames, nil, Options{Policy: PadSymmetricAll, PadSize: []int{16, 16}}, models.ErrInvalidConfiguration},
		{"pad size FFT", data, mask, frames, nil, Options{Policy: PadSymmetricRockingKeepDetector, PadSize: []int{16, 16, 22}}, models.ErrInvalidConfiguration},
		{"fixed bounds length", data, mask, frames, nil, Options{Policy: NoOp, FixedBounds: []int{0, 1}}, models.ErrInvalidConfiguration},
		{"peak length", data, mask, frames, nil, Options{Policy: NoOp, PeakOverride: []int{1, 2}}, models.ErrInvalidConfiguration},
		{"peak outside", data, mask, frames, nil, Options{Policy: NoOp, PeakOverride: []int{1, 2, 12}}, models.ErrInvalidConfiguration},
	}

	for _, tc := range tests {
		opts := tc.opts
		opts.Logger = quiet
		_, err := CenterFFT(tc.data, tc.mask, tc.frames, tc.q, opts)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}
