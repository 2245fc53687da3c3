package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/pkg/client"
)

type fakeBackend struct {
	logins   atomic.Int32
	logouts  atomic.Int32
	lastAuth atomic.Value

	// when set, /logout signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch req.Password {
		case "secret":
			json.NewEncoder(w).Encode(loginResponse{StatusCode: 200, Message: LoginSuccessMessage, SessionToken: "tok-123456789"})
		case "notoken":
			json.NewEncoder(w).Encode(loginResponse{StatusCode: 200, Message: LoginSuccessMessage})
		case "http404":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Account not found. Error Invalid credentials."}`))
		default:
			json.NewEncoder(w).Encode(loginResponse{StatusCode: 401, Message: "Invalid credentials."})
		}
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		f.lastAuth.Store(r.Header.Get(HeaderName))
		if f.release != nil {
			close(f.entered)
			<-f.release
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	return mux
}

func newTestStore(t *testing.T, p Persister) (*Store, *fakeBackend) {
	t.Helper()
	return newTestStoreWith(t, p, &fakeBackend{})
}

func newTestStoreWith(t *testing.T, p Persister, fb *fakeBackend) (*Store, *fakeBackend) {
	t.Helper()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	return NewStore(client.New(srv.URL), p), fb
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		password    string
		wantErr     bool
		wantMessage string
		wantCalls   int32
	}{
		{name: "success", email: "a@b.edu", password: "secret", wantCalls: 1},
		{name: "empty email", email: "  ", password: "secret", wantErr: true, wantMessage: "email and password are required"},
		{name: "empty password", email: "a@b.edu", wantErr: true, wantMessage: "email and password are required"},
		{name: "rejected", email: "a@b.edu", password: "wrong", wantErr: true, wantMessage: "Invalid credentials.", wantCalls: 1},
		{name: "http error detail", email: "a@b.edu", password: "http404", wantErr: true, wantMessage: "Account not found. Error Invalid credentials.", wantCalls: 1},
		{name: "missing token", email: "a@b.edu", password: "notoken", wantErr: true, wantMessage: "login response carried no session token", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fb := newTestStore(t, nil)

			sess, err := store.Login(context.Background(), tt.email, tt.password)
			assert.Equal(t, tt.wantCalls, fb.logins.Load())

			if tt.wantErr {
				var authErr *AuthError
				require.True(t, errors.As(err, &authErr), "expected AuthError, got %v", err)
				assert.Equal(t, tt.wantMessage, authErr.Message)
				assert.False(t, sess.Authenticated)
				_, ok := store.Token()
				assert.False(t, ok)
				return
			}

			require.NoError(t, err)
			assert.True(t, sess.Authenticated)
			assert.Equal(t, models.SessionAuthenticated, store.State())
			token, ok := store.Token()
			assert.True(t, ok)
			assert.Equal(t, "tok-123456789", token)
		})
	}
}

func TestLogoutIsBestEffortAndIdempotent(t *testing.T) {
	p := NewMemoryPersister()
	store, fb := newTestStore(t, p)

	_, err := store.Login(context.Background(), "a@b.edu", "secret")
	require.NoError(t, err)

	store.Logout(context.Background())
	assert.Equal(t, int32(1), fb.logouts.Load())
	assert.Equal(t, "Bearer tok-123456789", fb.lastAuth.Load())
	assert.Equal(t, models.SessionLoggedOut, store.State())

	token, loggedIn, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.False(t, loggedIn)

	// no token, no network call
	store.Logout(context.Background())
	assert.Equal(t, int32(1), fb.logouts.Load())
	assert.Equal(t, models.SessionLoggedOut, store.State())
}

func TestInvalidateNotifiesOnce(t *testing.T) {
	store, _ := newTestStore(t, nil)
	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	_, err := store.Login(context.Background(), "a@b.edu", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAuthenticated, <-events)

	store.Invalidate()
	assert.Equal(t, models.SessionExpired, <-events)

	store.Invalidate()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev)
	default:
	}
	assert.Equal(t, models.SessionExpired, store.State())
}

func TestSubscribeKeepsLatest(t *testing.T) {
	store, _ := newTestStore(t, nil)
	events, unsubscribe := store.Subscribe()

	_, err := store.Login(context.Background(), "a@b.edu", "secret")
	require.NoError(t, err)
	store.Logout(context.Background())

	assert.Equal(t, models.SessionLoggedOut, <-events)

	unsubscribe()
	_, open := <-events
	assert.False(t, open)
	unsubscribe()
}

func TestExpireIgnoresStaleToken(t *testing.T) {
	store, _ := newTestStore(t, nil)
	_, err := store.Login(context.Background(), "a@b.edu", "secret")
	require.NoError(t, err)

	assert.False(t, store.Expire("some-older-token"))
	assert.Equal(t, models.SessionAuthenticated, store.State())

	assert.True(t, store.Expire("tok-123456789"))
	assert.Equal(t, models.SessionExpired, store.State())
}

func TestRestoreFromBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.db")
	p, err := NewBoltPersister(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Save(context.Background(), "persisted-token"))

	store, _ := newTestStore(t, p)
	require.NoError(t, store.Restore(context.Background()))
	assert.Equal(t, models.SessionAuthenticated, store.State())
	token, _ := store.Token()
	assert.Equal(t, "persisted-token", token)

	store.Invalidate()
	token, loggedIn, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.False(t, loggedIn)
}

func TestLoginWaitsForLogout(t *testing.T) {
	fb := &fakeBackend{entered: make(chan struct{}), release: make(chan struct{})}
	store, _ := newTestStoreWith(t, nil, fb)

	_, err := store.Login(context.Background(), "a@b.edu", "secret")
	require.NoError(t, err)

	logoutDone := make(chan struct{})
	go func() {
		store.Logout(context.Background())
		close(logoutDone)
	}()
	<-fb.entered

	loginErr := make(chan error, 1)
	go func() {
		_, err := store.Login(context.Background(), "a@b.edu", "secret")
		loginErr <- err
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fb.logins.Load(), "login must not reach the service while logout is in flight")

	close(fb.release)
	<-logoutDone
	require.NoError(t, <-loginErr)

	assert.Equal(t, models.SessionAuthenticated, store.State())
	token, ok := store.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-123456789", token)
}

func TestLatestEventMatchesState(t *testing.T) {
	store, _ := newTestStore(t, nil)
	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Login(context.Background(), "a@b.edu", "secret")
		}()
		go func() {
			defer wg.Done()
			store.Invalidate()
		}()
	}
	wg.Wait()

	select {
	case ev := <-events:
		assert.Equal(t, store.State(), ev)
	default:
		t.Fatal("expected a pending event")
	}
}
