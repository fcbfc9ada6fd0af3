package reviewlist

// State is the view state: the last applied snapshot and the loading flag.
// The zero value is not ready for use; start from NewState.
type State struct {
	reviews []Review
	loading bool
	applied uint64 // sequence number of the snapshot in reviews
}

// NewState returns the state of a view that has not settled a fetch yet
func NewState() State {
	return State{loading: true}
}

// Apply settles fetch seq with a successful result. The snapshot is
// replaced only when seq is newer than the one already shown; the return
// value reports whether it was.
func (s *State) Apply(seq uint64, reviews []Review) bool {
	s.loading = false
	if seq <= s.applied {
		return false
	}
	s.applied = seq
	s.reviews = reviews
	return true
}

// Fail settles a failed fetch. The previous snapshot stays in place.
func (s *State) Fail(uint64) {
	s.loading = false
}

// Loading reports whether no fetch has settled yet
func (s State) Loading() bool { return s.loading }

// Reviews returns the current snapshot in server order
func (s State) Reviews() []Review { return s.reviews }

// Applied returns the sequence number of the current snapshot, 0 if none
func (s State) Applied() uint64 { return s.applied }
