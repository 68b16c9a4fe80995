package source

import "trackship/internal/state"

// Result is the internal outcome of a fetch: either Ok with vessels
// (possibly none) or Failed with the reason.
type Result struct {
	Vessels  []state.Vessel
	Err      error
	Attempts int
}

// Ok wraps a successful fetch.
func Ok(vessels []state.Vessel) Result {
	if vessels == nil {
		vessels = []state.Vessel{}
	}
	return Result{Vessels: vessels}
}

// Failed wraps a failed fetch. Vessels is empty, never nil.
func Failed(err error) Result {
	return Result{Vessels: []state.Vessel{}, Err: err}
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

func (r Result) withAttempts(n int) Result {
	r.Attempts = n
	return r
}
