package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/pkg/client"
)

// CatalogFetchError wraps any failure to obtain the course catalog
type CatalogFetchError struct {
	Err error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("failed to fetch course catalog: %v", e.Err)
}

func (e *CatalogFetchError) Unwrap() error {
	return e.Err
}

// Requester performs authenticated calls
type Requester interface {
	Request(ctx context.Context, endpoint string, opts transport.Options) (*client.Response, error)
}

// Client fetches the enrollment catalog
type Client struct {
	requester Requester
	cache     *cache.Cache
	tokenFn   func() (string, bool)
}

// Option configures the client
type Option func(*Client)

// WithCache keeps fetched catalogs for ttl, keyed by the current session
// token so a new login never sees another session's catalog
func WithCache(ttl time.Duration, tokenFn func() (string, bool)) Option {
	return func(c *Client) {
		if ttl <= 0 || tokenFn == nil {
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
		c.tokenFn = tokenFn
	}
}

// NewClient creates a catalog client
func NewClient(r Requester, opts ...Option) *Client {
	c := &Client{requester: r}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCatalog returns the full {instructor, student} catalog, unfiltered
func (c *Client) FetchCatalog(ctx context.Context) (*models.CourseCatalog, error) {
	key, cacheable := c.cacheKey()
	if cacheable {
		if cached, ok := c.cache.Get(key); ok {
			slog.Debug("course catalog served from cache")
			return cached.(*models.CourseCatalog), nil
		}
	}

	resp, err := c.requester.Request(ctx, "/courses", transport.Options{Method: http.MethodPost})
	if err != nil {
		return nil, &CatalogFetchError{Err: err}
	}

	var cat models.CourseCatalog
	if err := resp.Decode(&cat); err != nil {
		return nil, &CatalogFetchError{Err: err}
	}

	slog.Info("course catalog fetched",
		"student_courses", cat.Student.Len(),
		"instructor_courses", cat.Instructor.Len(),
	)

	if cacheable {
		c.cache.Set(key, &cat, cache.DefaultExpiration)
	}
	return &cat, nil
}

// Forget drops any cached catalog
func (c *Client) Forget() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func (c *Client) cacheKey() (string, bool) {
	if c.cache == nil {
		return "", false
	}
	token, ok := c.tokenFn()
	if !ok {
		return "", false
	}
	return "catalog:" + token, true
}
