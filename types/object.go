package types

import "maps"

// Placeholders written in place of non-finite numeric tokens before
// decoding. A value equal to one of these means unbounded magnitude.
const (
	PositiveUnbounded = "Infinity"
	NegativeUnbounded = "-Infinity"
	NotANumber        = "NaN"
)

// ObjectState is the opaque attribute bag of one object on one turn.
// Contents pass through unmodified; only the identity is interpreted.
type ObjectState map[string]any

// Clone returns a shallow copy of the attribute bag.
func (s ObjectState) Clone() ObjectState {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// IsUnbounded reports whether v is one of the non-finite placeholders.
func IsUnbounded(v any) bool {
	s, ok := v.(string)
	return ok && (s == PositiveUnbounded || s == NegativeUnbounded)
}

// ObjectKind returns the kind prefix of an object identity such as
// "tank-1" or "bullet_7". Identities without a separator are returned whole.
func ObjectKind(id string) string {
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '-', '_', ':':
			return id[:i]
		}
	}
	return id
}
