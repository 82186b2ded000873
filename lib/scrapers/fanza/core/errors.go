package core

import "fmt"

// TransportError covers network failures and error statuses from the
// site. Exactly one of Status or Err is meaningful.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: unexpected status %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a login state machine failure: a missing CSRF token,
// rejected credentials or a failed age gate.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }
