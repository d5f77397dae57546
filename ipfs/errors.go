package ipfs

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies a failed fetch.
type FetchErrorKind int

const (
	// FetchErrorTransient means the retry budget was exhausted on connection
	// errors, timeouts or retryable statuses.
	FetchErrorTransient FetchErrorKind = iota
	// FetchErrorStatus means the gateway answered with a non retryable status.
	FetchErrorStatus
	// FetchErrorParse means the content is not a valid proof artifact.
	FetchErrorParse
	// FetchErrorInvalidReference means the reference cannot be used as a
	// gateway path segment.
	FetchErrorInvalidReference
	// FetchErrorIntegrity means the content does not match its CID.
	FetchErrorIntegrity
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchErrorTransient:
		return "transient"
	case FetchErrorStatus:
		return "status"
	case FetchErrorParse:
		return "parse"
	case FetchErrorInvalidReference:
		return "invalid_reference"
	case FetchErrorIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FetchError is returned by Fetch and FetchJSON.
type FetchError struct {
	Kind       FetchErrorKind
	Reference  string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s failed (%s", e.Reference, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(", %d attempts", e.Attempts)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Terminal reports whether retrying the same reference later cannot succeed.
// Only an exhausted transient budget is not terminal.
func (e *FetchError) Terminal() bool {
	return e.Kind != FetchErrorTransient
}

// IsTerminal reports whether err is a terminal *FetchError.
func IsTerminal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Terminal()
}
