package centering

import (
	"fmt"
	"strings"

	"bcdiprep/internal/models"
)

// CenteringMode selects how the Bragg peak is located
type CenteringMode int

const (
	// Max uses the voxel of largest absolute intensity
	Max CenteringMode = iota
	// CenterOfMass uses the intensity weighted centroid
	CenterOfMass
)

// String returns the configuration name of the mode
func (m CenteringMode) String() string {
	switch m {
	case Max:
		return "max"
	case CenterOfMass:
		return "com"
	default:
		return fmt.Sprintf("CenteringMode(%d)", int(m))
	}
}

// ParseCenteringMode accepts "max", "com" and "center_of_mass"
func ParseCenteringMode(s string) (CenteringMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max":
		return Max, nil
	case "com", "center_of_mass", "centerofmass":
		return CenterOfMass, nil
	default:
		return 0, fmt.Errorf("%w: centering mode %q, expected max or com", models.ErrInvalidConfiguration, s)
	}
}

// Policy selects how the dataset is cropped or padded to FFT friendly sizes
type Policy int

const (
	// CropSymmetricAll crops every axis around the peak
	CropSymmetricAll Policy = iota + 1
	// CropAsymmetricAll crops every axis around the array center
	CropAsymmetricAll
	// PadSymmetricRockingCropDetector pads the rocking axis to the user size
	// around the peak and crops the detector axes around the peak
	PadSymmetricRockingCropDetector
	// PadAsymmetricRockingCropDetector pads the rocking axis to the next FFT
	// size and crops the detector axes around the peak
	PadAsymmetricRockingCropDetector
	// PadSymmetricRockingKeepDetector pads the rocking axis to the user size
	// around the peak
	PadSymmetricRockingKeepDetector
	// PadAsymmetricRockingKeepDetector pads the rocking axis to the next FFT size
	PadAsymmetricRockingKeepDetector
	// PadSymmetricAll pads every axis to the user size around the peak
	PadSymmetricAll
	// PadAsymmetricAll pads every axis to the next FFT size
	PadAsymmetricAll
	// NoOp keeps the dataset, optionally cropped to fixed bounds
	NoOp
)

var policyNames = []struct {
	policy Policy
	snake  string
	ident  string
}{
	{CropSymmetricAll, "crop_symmetric_ZYX", "CropSymmetricAll"},
	{CropAsymmetricAll, "crop_asymmetric_ZYX", "CropAsymmetricAll"},
	{PadSymmetricRockingCropDetector, "pad_symmetric_Z_crop_YX", "PadSymmetricRockingCropDetector"},
	{PadAsymmetricRockingCropDetector, "pad_asymmetric_Z_crop_YX", "PadAsymmetricRockingCropDetector"},
	{PadSymmetricRockingKeepDetector, "pad_symmetric_Z", "PadSymmetricRockingKeepDetector"},
	{PadAsymmetricRockingKeepDetector, "pad_asymmetric_Z", "PadAsymmetricRockingKeepDetector"},
	{PadSymmetricAll, "pad_symmetric_ZYX", "PadSymmetricAll"},
	{PadAsymmetricAll, "pad_asymmetric_ZYX", "PadAsymmetricAll"},
	{NoOp, "do_nothing", "NoOp"},
}

// Policies returns every policy in declaration order
func Policies() []Policy {
	out := make([]Policy, len(policyNames))
	for i, p := range policyNames {
		out[i] = p.policy
	}
	return out
}

// String returns the configuration name of the policy, e.g. "pad_symmetric_ZYX"
func (p Policy) String() string {
	for _, n := range policyNames {
		if n.policy == p {
			return n.snake
		}
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts both configuration names ("crop_symmetric_ZYX") and
// identifier names ("CropSymmetricAll"), ignoring case.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	for _, n := range policyNames {
		if strings.EqualFold(s, n.snake) || strings.EqualFold(s, n.ident) {
			return n.policy, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown policy %q", models.ErrInvalidConfiguration, s)
}

func (p Policy) valid() bool {
	return p >= CropSymmetricAll && p <= NoOp
}

// IsPad reports whether the policy pads at least one axis
func (p Policy) IsPad() bool {
	return p >= PadSymmetricRockingCropDetector && p <= PadAsymmetricAll
}

// needsPadSize reports whether the policy reads the user pad size
func (p Policy) needsPadSize() bool {
	switch p {
	case PadSymmetricRockingCropDetector, PadSymmetricRockingKeepDetector, PadSymmetricAll:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler
func (p Policy) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("%w: policy %d", models.ErrInvalidConfiguration, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
