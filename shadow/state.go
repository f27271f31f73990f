package shadow

// State maps a channel name to an integer intensity value. For a simple
// on/off device the values are 0 and 1.
//
// A well-formed state carries a value for every declared channel. Use
// NewState and the patch helpers to keep that invariant.
type State map[string]int

// DefaultChannels are the channels of the three-color LED demo device.
var DefaultChannels = []string{"Red", "Green", "Blue"}

// NewState returns the default state for the given channels, all zero.
func NewState(channels []string) State {
	s := make(State, len(channels))
	for _, c := range channels {
		s[c] = 0
	}
	return s
}

// Clone returns a copy of the state.
func (s State) Clone() State {
	c := make(State, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Equal reports whether both states carry the same channels with the
// same values.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// PatchOverDefault applies a sparse patch over the default all-zero state.
// Channels not present in the patch end up zero, channels not declared are
// dropped. This is the delta policy of the shadow service: missing fields
// reset to default, they do not retain the last reported value.
func PatchOverDefault(channels []string, patch State) State {
	s := NewState(channels)
	for _, c := range channels {
		if v, ok := patch[c]; ok {
			s[c] = v
		}
	}
	return s
}

// OneHot returns the state with the given channel set to 1 and all other
// channels cleared. This is the state a button press asks for.
func OneHot(channels []string, channel string) State {
	s := NewState(channels)
	if _, ok := s[channel]; ok {
		s[channel] = 1
	}
	return s
}
