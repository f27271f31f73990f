package shadow

import "sync"

// SourceKind says where a reconciliation attempt originates.
type SourceKind int

const (
	// SourceInitialGet is the response to the initial get request. It is
	// refused once a delta has been applied, so a stale fetch can never
	// overwrite a more recent delta.
	SourceInitialGet SourceKind = iota
	// SourceDelta is a service-pushed delta event.
	SourceDelta
	// SourceLocal is a local input event such as a button press.
	SourceLocal
)

func (k SourceKind) String() string {
	switch k {
	case SourceInitialGet:
		return "initial-get"
	case SourceDelta:
		return "delta"
	case SourceLocal:
		return "local"
	}
	return "unknown"
}

// Source qualifies an incoming state for CompareAndReconcile.
type Source struct {
	Kind SourceKind
	// Version is the shadow document version that produced the state,
	// zero when unknown (local events).
	Version uint64
}

// Store holds the last state the reconciler considered authoritative.
//
// All mutations run under a single mutex, so no two reconciliation attempts
// interleave. The store also tracks the last seen document version and
// whether a delta has already been applied; the flag guards an in-flight
// initial fetch against a newer delta.
//
// The store is never persisted, every process start re-fetches from the
// shadow service.
type Store struct {
	mu           sync.Mutex
	channels     []string
	value        State
	version      uint64
	deltaApplied bool
}

// NewStore returns a store initialized to the default all-zero state for
// the given channels.
func NewStore(channels []string) *Store {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	return &Store{
		channels: channels,
		value:    NewState(channels),
	}
}

// Channels returns the declared channel names.
func (s *Store) Channels() []string { return s.channels }

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.Clone()
}

// Set replaces the current state and returns the previous one.
func (s *Store) Set(value State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.value
	s.value = value.Clone()
	return previous
}

// Version returns the last seen shadow document version.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// DeltaApplied reports whether a delta event has been applied since the
// last fetch cycle began.
func (s *Store) DeltaApplied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltaApplied
}

// ResetDeltaGuard starts a new fetch cycle. Deltas arriving after this call
// take precedence over the fetch result again.
func (s *Store) ResetDeltaGuard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltaApplied = false
}

// CompareAndReconcile applies an incoming state atomically and reports
// whether the store changed.
//
// An initial-get state is refused once a delta has been applied. A delta
// marks the store as delta-updated even when the value is unchanged. The
// version only moves forward.
func (s *Store) CompareAndReconcile(incoming State, source Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch source.Kind {
	case SourceInitialGet:
		if s.deltaApplied {
			return false
		}
	case SourceDelta:
		s.deltaApplied = true
	}

	if source.Version > s.version {
		s.version = source.Version
	}

	if s.value.Equal(incoming) {
		return false
	}
	s.value = incoming.Clone()
	return true
}
