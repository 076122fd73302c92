package models

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestProvenanceCrop verifies that frames outside the crop range are marked unused
func TestProvenanceCrop(t *testing.T) {
	p := NewProvenance(6)

	cropped, err := p.Crop(1, 4)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	want := Provenance{Unused, Used, Used, Used, Unused, Unused}
	if diff := cmp.Diff(want, cropped); diff != "" {
		t.Errorf("Unexpected provenance (-want +got):\n%s", diff)
	}
	if cropped.Active() != 3 {
		t.Errorf("Expected 3 active frames, got %d", cropped.Active())
	}

	// The input must not be modified
	if p.Active() != 6 {
		t.Errorf("Crop modified its input: %v", p)
	}
}

// TestProvenanceCropRanksActiveFrames checks that crop indices refer to the
// frames present in the dataset, skipping entries already unused
func TestProvenanceCropRanksActiveFrames(t *testing.T) {
	p := Provenance{Used, Unused, Used, Used, Used}

	cropped, err := p.Crop(1, 3)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	want := Provenance{Unused, Unused, Used, Used, Unused}
	if diff := cmp.Diff(want, cropped); diff != "" {
		t.Errorf("Unexpected provenance (-want +got):\n%s", diff)
	}
}

// TestProvenanceCropOutOfRange verifies the range validation
func TestProvenanceCropOutOfRange(t *testing.T) {
	p := NewProvenance(4)
	if _, err := p.Crop(0, 5); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := p.Crop(3, 2); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

// TestProvenancePad verifies that padding grows the vector on both ends
func TestProvenancePad(t *testing.T) {
	p := Provenance{Unused, Used, Used}

	padded, err := p.Pad(2, 1)
	if err != nil {
		t.Fatalf("Pad failed: %v", err)
	}

	want := Provenance{Padded, Padded, Unused, Used, Used, Padded}
	if diff := cmp.Diff(want, padded); diff != "" {
		t.Errorf("Unexpected provenance (-want +got):\n%s", diff)
	}
	if padded.Count(Padded) != 3 {
		t.Errorf("Expected 3 padded frames, got %d", padded.Count(Padded))
	}
	if _, err := p.Pad(-1, 0); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for negative padding, got %v", err)
	}
}

func TestProvenanceFromInts(t *testing.T) {
	p, err := ProvenanceFromInts([]int{-1, 0, 1})
	if err != nil {
		t.Fatalf("ProvenanceFromInts failed: %v", err)
	}
	if diff := cmp.Diff([]int{-1, 0, 1}, p.Ints()); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
	if _, err := ProvenanceFromInts([]int{2}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestPadWidthClamped(t *testing.T) {
	pw := PadWidth{-1, 2, 0, -3, 4, 5}
	got := pw.Clamped()
	want := PadWidth{0, 2, 0, 0, 4, 5}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if lo, hi := got.Axis(2); lo != 4 || hi != 5 {
		t.Errorf("Expected x padding (4, 5), got (%d, %d)", lo, hi)
	}
	if !(PadWidth{}).IsZero() {
		t.Error("Zero pad width should report IsZero")
	}
}

// TestQGridSliceAndExtend verifies that q components stay linearly spaced
func TestQGridSliceAndExtend(t *testing.T) {
	q := &QGrid{
		Qx: []float64{0.0, 0.1, 0.2, 0.3},
		Qz: []float64{1, 2, 3},
		Qy: []float64{-1, 0, 1},
	}

	sliced, err := q.Slice(0, 1, 3)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0.1, 0.2}, sliced.Qx); diff != "" {
		t.Errorf("Unexpected sliced qx (-want +got):\n%s", diff)
	}
	if len(q.Qx) != 4 {
		t.Error("Slice modified its input")
	}

	extended, err := q.Extend(1, 2, 7)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	want := []float64{-1, 0, 1, 2, 3, 4, 5}
	for i := range want {
		if math.Abs(extended.Qz[i]-want[i]) > 1e-12 {
			t.Errorf("qz[%d]: expected %f, got %f", i, want[i], extended.Qz[i])
		}
	}

	if err := extended.CheckShape([]int{4, 7, 3}); err != nil {
		t.Errorf("CheckShape failed on a co-registered grid: %v", err)
	}
	if err := extended.CheckShape([]int{4, 3, 3}); !errors.Is(err, ErrShape) {
		t.Errorf("Expected ErrShape, got %v", err)
	}

	short := &QGrid{Qx: []float64{1}}
	if _, err := short.Extend(0, 1, 3); !errors.Is(err, ErrShape) {
		t.Errorf("Expected ErrShape for a single sample, got %v", err)
	}
}
