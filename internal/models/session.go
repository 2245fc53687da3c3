package models

import "time"

// SessionState is the lifecycle position of the client's login
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated" // Never logged in
	SessionAuthenticated   SessionState = "authenticated"   // Token held
	SessionExpired         SessionState = "expired"         // Token rejected by the service
	SessionLoggedOut       SessionState = "logged_out"      // User logged out
)

// IsAuthenticated returns true if a token is held
func (s SessionState) IsAuthenticated() bool {
	return s == SessionAuthenticated
}

// Session is a point-in-time view of the client's credential
type Session struct {
	Token         string       `json:"-"` // Never serialize
	State         SessionState `json:"state"`
	Authenticated bool         `json:"authenticated"`
	Since         time.Time    `json:"since"`
}

// MaskedToken returns first 8 characters of the token for logging
func (s Session) MaskedToken() string {
	return MaskToken(s.Token)
}

// MaskToken returns first 8 characters of a token for logging
func MaskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}
