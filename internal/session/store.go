package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/pkg/client"
)

// persistTimeout bounds persistence calls made outside a caller's context
const persistTimeout = 5 * time.Second

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	StatusCode   int    `json:"status_code"`
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
	Detail       string `json:"detail"`
}

// Store holds the single live session of a client instance.
//
// State moves unauthenticated -> authenticated on Login, and from
// authenticated to logged_out on Logout or expired on Invalidate/Expire.
// Token reads share mu with every transition, so a transition never
// interleaves with a header being attached.
type Store struct {
	client    *client.Client
	persister Persister

	loginMu sync.Mutex

	mu    sync.RWMutex
	token string
	state models.SessionState
	since time.Time

	subsMu  sync.Mutex
	subs    map[int]chan models.SessionState
	nextSub int

	now func() time.Time
}

// NewStore creates an unauthenticated store
func NewStore(c *client.Client, p Persister) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Store{
		client:    c,
		persister: p,
		state:     models.SessionUnauthenticated,
		since:     time.Now(),
		subs:      make(map[int]chan models.SessionState),
		now:       time.Now,
	}
}

// Restore loads a persisted session, if any
func (s *Store) Restore(ctx context.Context) error {
	token, loggedIn, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if !loggedIn || token == "" {
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.setState(models.SessionAuthenticated)
	s.notify(models.SessionAuthenticated)
	s.mu.Unlock()

	slog.Info("session restored", "token", models.MaskToken(token))
	return nil
}

// Login exchanges credentials for a session token
func (s *Store) Login(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.Snapshot(), &AuthError{Message: "email and password are required"}
	}

	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	resp, err := s.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/login",
		Body:   loginRequest{Email: email, Password: password},
	})
	if err != nil {
		return s.Snapshot(), &AuthError{Message: "login request failed", Err: err}
	}

	var lr loginResponse
	decodeErr := resp.Decode(&lr)

	if !resp.OK() {
		msg := lr.Detail
		if msg == "" {
			msg = lr.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return s.Snapshot(), &AuthError{Message: msg, StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return s.Snapshot(), &AuthError{Message: "malformed login response", StatusCode: resp.StatusCode, Err: decodeErr}
	}

	if lr.StatusCode != http.StatusOK || lr.Message != LoginSuccessMessage {
		msg := lr.Message
		if msg == "" {
			msg = "login rejected"
		}
		return s.Snapshot(), &AuthError{Message: msg, StatusCode: lr.StatusCode}
	}
	if lr.SessionToken == "" {
		return s.Snapshot(), &AuthError{Message: "login response carried no session token", StatusCode: lr.StatusCode}
	}

	s.mu.Lock()
	s.token = lr.SessionToken
	s.setState(models.SessionAuthenticated)
	if err := s.persister.Save(ctx, lr.SessionToken); err != nil {
		slog.Warn("failed to persist session", "error", err)
	}
	snap := s.snapshotLocked()
	s.notify(models.SessionAuthenticated)
	s.mu.Unlock()

	slog.Info("logged in", "token", snap.MaskedToken())
	return snap, nil
}

// Logout tells the service (best effort) and clears the local session.
// Safe to call in any state. Login waits until Logout has returned.
func (s *Store) Logout(ctx context.Context) {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	token, ok := s.Token()
	if ok {
		resp, err := s.client.Do(ctx, client.Request{
			Method: http.MethodPost,
			Path:   "/logout",
			Header: AuthHeader(token),
		})
		switch {
		case err != nil:
			slog.Warn("logout request failed", "error", err)
		case !resp.OK():
			slog.Warn("logout rejected by service", "status", resp.StatusCode)
		}
	}

	s.clear(ctx, models.SessionLoggedOut, "")
}

// Invalidate drops the session as if the service had rejected it
func (s *Store) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	s.clear(ctx, models.SessionExpired, "")
}

// Expire invalidates the session only if token is still the live one, so
// a rejection of an old token cannot end a session created after it.
func (s *Store) Expire(token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return s.clear(ctx, models.SessionExpired, token)
}

// clear empties the session and moves to next. A non-empty onlyToken makes
// it conditional on that token being current.
func (s *Store) clear(ctx context.Context, next models.SessionState, onlyToken string) bool {
	s.mu.Lock()
	if onlyToken != "" && s.token != onlyToken {
		s.mu.Unlock()
		return false
	}

	prev := s.state
	s.token = ""
	if err := s.persister.Clear(ctx); err != nil {
		slog.Warn("failed to clear persisted session", "error", err)
	}

	// Expiring an unauthenticated or logged-out session is not a transition.
	changed := prev != next && (next != models.SessionExpired || prev == models.SessionAuthenticated)
	if changed {
		s.setState(next)
		s.notify(next)
	}
	s.mu.Unlock()

	if changed {
		slog.Info("session ended", "from", prev, "to", next)
	}
	return changed
}

// setState must be called with mu held
func (s *Store) setState(state models.SessionState) {
	s.state = state
	s.since = s.now()
}

// Token returns the current token, if any
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// State returns the current lifecycle state
func (s *Store) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a copy of the session
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Session {
	return models.Session{
		Token:         s.token,
		State:         s.state,
		Authenticated: s.state.IsAuthenticated(),
		Since:         s.since,
	}
}

// Subscribe returns a channel that always holds the most recent state
// transition; a slow reader sees only the latest one. Call the returned
// function to unsubscribe.
func (s *Store) Subscribe() (<-chan models.SessionState, func()) {
	ch := make(chan models.SessionState, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// notify must be called with mu held so events are sent in transition
// order. It never blocks.
func (s *Store) notify(state models.SessionState) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		// drop a stale unread value, then send; buffer is 1 and we are the only sender
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}
