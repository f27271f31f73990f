package shadowstore

import "github.com/relabs-tech/shadowsync/shadow"

// MergeState applies an update patch to a stored state, key by key. The
// base is not modified. A nil patch returns a copy of the base.
func MergeState(base, patch shadow.State) shadow.State {
	merged := make(shadow.State, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// ComputeDelta returns the channels whose desired value differs from the
// reported one, with their desired values. An empty result means desired
// and reported agree and no delta event is due.
func ComputeDelta(desired, reported shadow.State) shadow.State {
	delta := shadow.State{}
	for k, v := range desired {
		if rv, ok := reported[k]; !ok || rv != v {
			delta[k] = v
		}
	}
	return delta
}
