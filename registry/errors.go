package registry

import (
	"errors"

	"github.com/algorank/algorank-node/db"
)

// Codes transport the guard errors over the API.
const (
	CodeAlreadySubmitted = "already_submitted"
	CodeNoSubmission     = "no_submission"
	CodeAlreadyVerified  = "already_verified"
	CodeUnauthorized     = "unauthorized"
	CodeNotRegistered    = "not_registered"
	CodeVerifierLocked   = "verifier_locked"
	CodeEmptyReference   = "empty_reference"
)

var guardErrors = map[string]error{
	CodeAlreadySubmitted: ErrAlreadySubmitted,
	CodeNoSubmission:     ErrNoSubmission,
	CodeAlreadyVerified:  ErrAlreadyVerified,
	CodeUnauthorized:     ErrUnauthorized,
	CodeNotRegistered:    ErrNotRegistered,
	CodeVerifierLocked:   ErrVerifierLocked,
	CodeEmptyReference:   ErrEmptyReference,
}

// Code returns the code of a guard error, or an empty string if err is not
// one.
func Code(err error) string {
	for code, guard := range guardErrors {
		if errors.Is(err, guard) {
			return code
		}
	}
	return ""
}

// ErrorFromCode returns the guard error of code, or nil if the code is
// unknown.
func ErrorFromCode(code string) error {
	return guardErrors[code]
}

// IsGuardError reports whether err is a rejected call that wrote nothing, as
// opposed to a storage failure.
func IsGuardError(err error) bool {
	return Code(err) != ""
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrKeyNotFound)
}
