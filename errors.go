package crossauth

import "errors"

var (
	// ErrUnauthenticated is returned by Validate when a token maps to no live session.
	// It is an expected outcome, not a failure of the service.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStorage wraps credential store failures so callers can tell "no session"
	// apart from "could not check".
	ErrStorage = errors.New("credential store unavailable")
	// ErrInvalidRole is returned when a role string is not in the configured set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistration is returned by Register for malformed input.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrAccountWithoutSession is returned by Register when the user was stored but
	// their first session could not be issued. The account exists; the caller should
	// sign in instead of registering again.
	ErrAccountWithoutSession = errors.New("account created but no session issued")
	// ErrUserNotFound is returned by credential stores for unknown user lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrManagerNotReady is returned by methods called on a nil or unbuilt Manager.
	ErrManagerNotReady = errors.New("manager not initialized")
)
