package client

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Match them with errors.Is.
var (
	ErrInvalidState         = errors.New("invalid state parameter")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrTransport            = errors.New("transport error")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrRefreshFailed        = errors.New("token refresh failed")
)

// TransportError describes a failed HTTP exchange. StatusCode is zero when the
// request never produced a response.
type TransportError struct {
	Method     string
	URI        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s returned code %d", e.Method, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URI, e.Err)
}

// Is reports every TransportError as ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
