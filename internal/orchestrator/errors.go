package orchestrator

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrInFlight rejects a submission while another is running.
	ErrInFlight = eris.New("orchestrator: generation already in flight")
	// ErrNotBlocked rejects exit actions outside the Blocked state.
	ErrNotBlocked = eris.New("orchestrator: workflow is not blocked")
	// ErrStale is returned to the caller whose attempt was canceled or
	// superseded before its result arrived. The result is discarded.
	ErrStale = eris.New("orchestrator: attempt canceled")
)

// TransportError wraps a failed remote call. No partial result exists.
type TransportError struct {
	Function string
	Err      error
}

func (e *TransportError) Error() string {
	return "orchestrator: " + e.Function + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
