package session

import (
	"fmt"
	"net/http"
)

// LoginSuccessMessage is the message the service pairs with a 200 status_code
const LoginSuccessMessage = "Login successful"

// Canonical credential header. The service accepts the token only as a
// bearer credential; no other header spelling is sent.
const (
	HeaderName   = "Authorization"
	BearerPrefix = "Bearer "
)

// AuthHeader returns the header set carrying token
func AuthHeader(token string) http.Header {
	h := make(http.Header)
	h.Set(HeaderName, BearerPrefix+token)
	return h
}

// AuthError is returned when the service rejects a login
type AuthError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return "authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
