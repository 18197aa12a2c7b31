package conceal

// EffectKind identifies a concealment effect.
type EffectKind int

const (
	EffectBlur     EffectKind = iota // Box blur over the region
	EffectPixelate                   // Block-average mosaic over the region
)

func (e EffectKind) String() string {
	switch e {
	case EffectBlur:
		return "Blur"
	case EffectPixelate:
		return "Pixelate"
	default:
		return "Unknown"
	}
}

// EffectAssignment pairs a region with the effect to apply to it.
type EffectAssignment struct {
	Region Region
	Kind   EffectKind
}

// AssignAll builds one assignment per region, all with the same effect.
func AssignAll(regions []Region, kind EffectKind) []EffectAssignment {
	out := make([]EffectAssignment, len(regions))
	for i, r := range regions {
		out[i] = EffectAssignment{Region: r, Kind: kind}
	}
	return out
}

// EffectRenderer composites concealment effects onto a frame.
//
// Apply returns a new frame with each assigned region masked and replaced
// by the chosen effect; the input frame is not modified. Overlapping
// regions are applied independently in assignment order.
type EffectRenderer interface {
	Apply(frame *VideoFrame, assignments []EffectAssignment) (*VideoFrame, error)
}
