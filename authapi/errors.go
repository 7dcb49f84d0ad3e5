package authapi

import "errors"

// ErrorKind is the closed set of failure categories the HTTP boundary can
// produce. Callers switch on the kind instead of inspecting error strings
// or status codes scattered across call sites.
type ErrorKind string

const (
	KindCredentials  ErrorKind = "credentials"  // login rejected (bad credentials, unknown user)
	KindRegistration ErrorKind = "registration" // registration rejected (duplicate email, weak password)
	KindRefresh      ErrorKind = "refresh"      // refresh rejected (missing, expired or revoked cookie)
	KindTransport    ErrorKind = "transport"    // request never produced an HTTP response
	KindServer       ErrorKind = "server"       // unexpected server-side failure (5xx, malformed body)
)

// Error is the only error type returned by Client methods. Message carries
// the server-supplied reason verbatim so it can be shown to the user.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // zero for transport failures
	cause      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError returns the *Error in err's chain, or nil when there is none.
func AsError(err error) *Error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return nil
	}
	return apiErr
}
