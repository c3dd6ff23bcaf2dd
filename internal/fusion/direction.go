package fusion

// Direction is a caller-supplied asymmetric query orientation, carried
// into fusion to scale the single directional slot's contribution.
// step 5 ties the modifier to the direction itself, not to
// the embedder variant: a Cause query embeds the free text as an
// "effect" and searches the cause-side index, then dampens that
// contribution; an Effect query does the mirror and amplifies it. The
// caller (internal/search.Engine) is responsible for choosing which
// single slot/variant actually gets queried for a directional search —
// Fuse only needs to know how hard to scale whatever directional source
// it was handed.
type Direction string

const (
	// DirectionNone leaves every source at full weight — the default for
	// symmetric embedders and for queries with no requested orientation.
	DirectionNone Direction = ""

	// DirectionCause is an abductive query ("what caused this?"): reasoning
	// backward from an effect, dampened by CauseModifier to reflect the
	// inherent uncertainty of that direction.
	DirectionCause Direction = "cause"

	// DirectionEffect is a predictive query ("what does this cause?"):
	// reasoning forward from a cause, amplified by EffectModifier.
	DirectionEffect Direction = "effect"
)

// CauseModifier and EffectModifier are the direction-aware rerank
// factors from step 5, applied to whichever asymmetric
// slot's contribution the caller is retrieving under that direction.
const (
	CauseModifier  = 0.8
	EffectModifier = 1.2
)

// DirectionModifier returns the weight multiplier for an asymmetric
// slot's contribution under direction. asymmetric must be true for the
// slot being scaled — callers only pass a Direction other than
// DirectionNone for the one directional slot they deliberately queried
// (E5 cause/effect, or analogously E8 source/target); every other slot
// in the same Fuse call passes DirectionNone and is left untouched.
func DirectionModifier(direction Direction, asymmetric bool) float64 {
	if !asymmetric || direction == DirectionNone {
		return 1.0
	}
	switch direction {
	case DirectionCause:
		return CauseModifier
	case DirectionEffect:
		return EffectModifier
	default:
		return 1.0
	}
}
