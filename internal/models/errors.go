package models

import "errors"

// Error taxonomy shared by every package of the module. Callers wrap these
// with fmt.Errorf("%w: ...") and test them with errors.Is.
var (
	// ErrShape reports a dimensionality or shape mismatch between arrays.
	ErrShape = errors.New("shape error")

	// ErrInvalidConfiguration reports a malformed option: bad policy name,
	// pad size that does not meet FFT requirements, out of range bounds.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedDetector reports a detector model missing from the gap table.
	ErrUnsupportedDetector = errors.New("unsupported detector")

	// ErrLengthMismatch reports provenance or monitor vectors whose length
	// disagrees with the number of frames.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrInvalidArgument reports an argument outside the domain of a function.
	ErrInvalidArgument = errors.New("invalid argument")
)
