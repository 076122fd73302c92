package models

import "fmt"

// FrameTag labels one entry of a provenance vector
type FrameTag int8

const (
	// Padded marks a synthetic frame inserted by padding
	Padded FrameTag = -1
	// Unused marks a measured frame dropped by cropping
	Unused FrameTag = 0
	// Used marks a measured frame present in the dataset
	Used FrameTag = 1
)

// String returns the tag name
func (t FrameTag) String() string {
	switch t {
	case Padded:
		return "padded"
	case Unused:
		return "unused"
	case Used:
		return "used"
	default:
		return fmt.Sprintf("FrameTag(%d)", int8(t))
	}
}

// Provenance tracks, for every measured frame and every padded frame, whether
// it is part of the current dataset along the rocking axis.
//
// Entries are only relabelled or added, never removed. The number of entries
// that are not Unused always equals the length of the rocking axis of the
// companion volume.
type Provenance []FrameTag

// NewProvenance returns a vector of n Used frames
func NewProvenance(n int) Provenance {
	p := make(Provenance, n)
	for i := range p {
		p[i] = Used
	}
	return p
}

// Clone returns an independent copy
func (p Provenance) Clone() Provenance {
	out := make(Provenance, len(p))
	copy(out, p)
	return out
}

// Active counts the entries present in the dataset (Used or Padded)
func (p Provenance) Active() int {
	n := 0
	for _, t := range p {
		if t != Unused {
			n++
		}
	}
	return n
}

// Count returns how many entries carry the tag
func (p Provenance) Count(tag FrameTag) int {
	n := 0
	for _, t := range p {
		if t == tag {
			n++
		}
	}
	return n
}

// Crop returns a copy where the active entries whose rank along the rocking
// axis falls outside [lo, hi) are relabelled Unused. Padded entries are
// never relabelled; cropping always precedes padding in the engine.
func (p Provenance) Crop(lo, hi int) (Provenance, error) {
	active := p.Active()
	if lo < 0 || hi > active || lo > hi {
		return nil, fmt.Errorf("%w: crop range [%d, %d) outside %d active frames",
			ErrInvalidConfiguration, lo, hi, active)
	}

	out := p.Clone()
	rank := 0
	for i, t := range out {
		if t == Unused {
			continue
		}
		if (rank < lo || rank >= hi) && t == Used {
			out[i] = Unused
		}
		rank++
	}
	return out, nil
}

// Pad returns a new vector with low Padded entries before and high Padded
// entries after the existing ones.
func (p Provenance) Pad(low, high int) (Provenance, error) {
	if low < 0 || high < 0 {
		return nil, fmt.Errorf("%w: negative frame padding (%d, %d)", ErrInvalidConfiguration, low, high)
	}
	out := make(Provenance, 0, low+len(p)+high)
	for i := 0; i < low; i++ {
		out = append(out, Padded)
	}
	out = append(out, p...)
	for i := 0; i < high; i++ {
		out = append(out, Padded)
	}
	return out, nil
}

// Ints returns the tags as plain integers (1 used, 0 unused, -1 padded)
func (p Provenance) Ints() []int {
	out := make([]int, len(p))
	for i, t := range p {
		out[i] = int(t)
	}
	return out
}

// ProvenanceFromInts builds a vector from plain integers, rejecting values
// other than -1, 0 and 1.
func ProvenanceFromInts(values []int) (Provenance, error) {
	out := make(Provenance, len(values))
	for i, v := range values {
		switch FrameTag(v) {
		case Padded, Unused, Used:
			out[i] = FrameTag(v)
		default:
			return nil, fmt.Errorf("%w: frame tag %d at index %d", ErrInvalidArgument, v, i)
		}
	}
	return out, nil
}
