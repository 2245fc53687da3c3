package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/terra-clan/duewatch/internal/session"
	"github.com/terra-clan/duewatch/pkg/client"
)

// Sessions is the part of the session store the transport needs
type Sessions interface {
	Token() (string, bool)
	Invalidate()
	Expire(token string) bool
}

// Config holds retry and rate limit settings
type Config struct {
	MaxAttempts int           // total attempts on an unauthorized response
	Backoff     time.Duration // fixed pause between attempts
	RateLimit   float64       // requests per second, 0 disables
	Burst       int
}

// Options describes one authenticated call
type Options struct {
	Method string
	Query  url.Values
	Body   interface{}
}

// Transport attaches the session credential to outbound requests and
// turns repeated authorization failures into a session expiry
type Transport struct {
	client      *client.Client
	sessions    Sessions
	maxAttempts int
	backoff     time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a transport over c
func New(c *client.Client, sessions Sessions, cfg Config) *Transport {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}

	t := &Transport{
		client:      c,
		sessions:    sessions,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		sleep:       sleepContext,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return t
}

// Request performs an authenticated call to endpoint
func (t *Transport) Request(ctx context.Context, endpoint string, opts Options) (*client.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	for attempt := 1; ; attempt++ {
		token, ok := t.sessions.Token()
		if !ok {
			// a missing token is handled exactly like an expired one
			t.sessions.Invalidate()
			return nil, ErrNoSession
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Endpoint: endpoint, Err: err}
			}
		}

		resp, err := t.client.Do(ctx, client.Request{
			Method: method,
			Path:   endpoint,
			Query:  opts.Query,
			Header: session.AuthHeader(token),
			Body:   opts.Body,
		})
		if err != nil {
			return nil, &TransportError{Endpoint: endpoint, Err: err}
		}

		if isUnauthorized(resp.StatusCode) {
			if attempt < t.maxAttempts {
				slog.Warn("request unauthorized, retrying",
					"endpoint", endpoint,
					"attempt", attempt,
					"max_attempts", t.maxAttempts,
				)
				if err := t.sleep(ctx, t.backoff); err != nil {
					return nil, &TransportError{Endpoint: endpoint, Err: err}
				}
				continue
			}

			slog.Warn("session rejected, invalidating",
				"endpoint", endpoint,
				"attempts", attempt,
				"status", resp.StatusCode,
			)
			t.sessions.Expire(token)
			return nil, ErrSessionExpired
		}

		if resp.StatusCode >= 400 {
			return nil, &StatusError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       resp.Body,
			}
		}

		return resp, nil
	}
}

func isUnauthorized(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
