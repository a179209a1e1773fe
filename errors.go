package labdojo

import "errors"

// Sentinel errors shared across the SDK. Callers match them with
// errors.Is after unwrapping package prefixes.
var (
	// ErrStateMismatch means the OAuth callback presented a state
	// value that does not equal the one stored before redirect.
	// Security-relevant: the callback must fail loudly.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrNoToken means the OAuth callback carried no session token.
	ErrNoToken = errors.New("no authentication token received")

	// ErrOperationInFlight means a bulk submission was attempted
	// while another one is still executing.
	ErrOperationInFlight = errors.New("bulk operation already in flight")

	// ErrNoHierarchy means an authorization decision was requested
	// before a role hierarchy snapshot was available.
	ErrNoHierarchy = errors.New("role hierarchy unavailable")
)
