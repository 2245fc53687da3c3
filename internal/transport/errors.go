package transport

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Common errors
var (
	ErrNoSession      = errors.New("no session token present")
	ErrSessionExpired = errors.New("session expired")
)

// TransportError is a failure to complete the HTTP exchange
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a completed exchange with a non-success status
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

// maxErrorBody bounds how much of a response body an error message quotes
const maxErrorBody = 200

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("HTTP %d on %s: %s", e.StatusCode, e.Endpoint, body)
}
