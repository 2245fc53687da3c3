package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/session"
	"github.com/terra-clan/duewatch/pkg/client"
)

const testToken = "tok-abcdefgh"

func newTransport(t *testing.T, h http.HandlerFunc) (*Transport, *session.Store, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	p := session.NewMemoryPersister()
	require.NoError(t, p.Save(context.Background(), testToken))
	store := session.NewStore(c, p)
	require.NoError(t, store.Restore(context.Background()))

	tr := New(c, store, Config{MaxAttempts: 2, Backoff: time.Millisecond})
	return tr, store, &calls
}

func TestRequestAttachesBearerToken(t *testing.T) {
	tr, _, calls := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "7", r.URL.Query().Get("course_id"))
		w.Write([]byte(`[]`))
	})

	resp, err := tr.Request(context.Background(), "/assignments", Options{Query: url.Values{"course_id": {"7"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestRetriesThenExpires(t *testing.T) {
	tr, store, calls := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	events, unsubscribe := store.Subscribe()
	defer unsubscribe()

	_, err := tr.Request(context.Background(), "/courses", Options{})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, models.SessionExpired, store.State())
	assert.Equal(t, models.SessionExpired, <-events)

	// after invalidation no network call is made
	_, err = tr.Request(context.Background(), "/courses", Options{})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequestRecoversOnSecondAttempt(t *testing.T) {
	var n atomic.Int32
	tr, store, calls := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	})

	_, err := tr.Request(context.Background(), "/courses", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, models.SessionAuthenticated, store.State())
}

func TestRequestAfterInvalidate(t *testing.T) {
	tr, store, calls := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	store.Invalidate()
	_, err := tr.Request(context.Background(), "/courses", Options{})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRequestStatusError(t *testing.T) {
	tr, store, calls := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"boom"}`))
	})

	_, err := tr.Request(context.Background(), "/courses", Options{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, models.SessionAuthenticated, store.State())
}

func TestRequestConnectionFailureNotRetried(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	base := dead.URL
	dead.Close()

	c := client.New(base)
	p := session.NewMemoryPersister()
	require.NoError(t, p.Save(context.Background(), testToken))
	store := session.NewStore(c, p)
	require.NoError(t, store.Restore(context.Background()))

	tr := New(c, store, Config{})
	_, err := tr.Request(context.Background(), "/courses", Options{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "/courses", transportErr.Endpoint)
	assert.Equal(t, models.SessionAuthenticated, store.State())
}

func TestRequestCancelledDuringBackoff(t *testing.T) {
	tr, _, _ := newTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	tr.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := tr.Request(ctx, "/courses", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusErrorTruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes then a 3-byte rune straddling the cut
	body := []byte(strings.Repeat("a", 199) + "€" + "tail")
	err := &StatusError{Endpoint: "/courses", StatusCode: 502, Body: body}

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, strings.Repeat("a", 199)+"..."))

	short := &StatusError{Endpoint: "/courses", StatusCode: 500, Body: []byte(`{"detail":"boom"}`)}
	assert.Equal(t, `HTTP 500 on /courses: {"detail":"boom"}`, short.Error())
}
