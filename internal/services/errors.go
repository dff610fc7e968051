package services

import "errors"

// Enumerated failure kinds for the authentication core. Handlers match on
// these with errors.Is and map them onto HTTP statuses; wrong-email and
// wrong-password collapse into one user-visible message so responses do
// not leak which accounts exist.
var (
	// validation
	ErrCredentialsRequired = errors.New("email and password are required")
	ErrMissingEmail        = errors.New("assertion carries no email")

	// credential verification
	ErrUserNotFound    = errors.New("no user found with this email")
	ErrInvalidPassword = errors.New("invalid password")

	// account state
	ErrNoPasswordSet      = errors.New("this account doesn't have a password set")
	ErrAccountDeactivated = errors.New("this account has been deactivated")

	// conflicts and linking
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	ErrDuplicateLink  = errors.New("provider identity is already linked")
	ErrLinkFailed     = errors.New("failed linking provider account")

	// sessions
	ErrSessionInvalid = errors.New("session is no longer valid")
)
