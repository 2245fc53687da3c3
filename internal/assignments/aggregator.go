package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/pkg/client"
)

// Requester performs authenticated calls
type Requester interface {
	Request(ctx context.Context, endpoint string, opts transport.Options) (*client.Response, error)
}

// CourseFailure records why one course contributed nothing
type CourseFailure struct {
	CourseID string
	Err      error
}

// PartialAggregationError lists the courses whose fetch failed. It is
// returned next to the successful results and is not fatal.
type PartialAggregationError struct {
	Failures []CourseFailure
}

func (e *PartialAggregationError) Error() string {
	return fmt.Sprintf("assignments unavailable for %d course(s): %s",
		len(e.Failures), strings.Join(e.CourseIDs(), ", "))
}

// Unwrap exposes the individual causes to errors.Is/As
func (e *PartialAggregationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// CourseIDs returns the failed course ids in input order
func (e *PartialAggregationError) CourseIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.CourseID)
	}
	return ids
}

// Aggregator fetches assignments for many courses at once
type Aggregator struct {
	requester   Requester
	concurrency int
	onError     func(courseID string, err error)
}

// Option configures the aggregator
type Option func(*Aggregator)

// WithConcurrency caps in-flight requests; 0 means one per course
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.concurrency = n
	}
}

// WithErrorHandler sets the callback told about each failed course
func WithErrorHandler(fn func(courseID string, err error)) Option {
	return func(a *Aggregator) {
		a.onError = fn
	}
}

// NewAggregator creates an aggregator
func NewAggregator(r Requester, opts ...Option) *Aggregator {
	a := &Aggregator{requester: r}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchAll issues one request per course concurrently and waits for all of
// them. A failed course contributes nothing and is reported; a cancelled one
// contributes nothing and is not. Results keep the order of courses.
func (a *Aggregator) FetchAll(ctx context.Context, courses []models.Course) ([]models.Assignment, error) {
	results := make([][]models.Assignment, len(courses))
	errs := make([]error, len(courses))

	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}

	for i, c := range courses {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = a.fetchCourse(ctx, c.ID)
			return nil
		})
	}
	g.Wait()

	var all []models.Assignment
	var failures []CourseFailure
	for i, c := range courses {
		if err := errs[i]; err != nil {
			if isCancellation(ctx, err) {
				continue
			}
			slog.Warn("failed to fetch course assignments", "course_id", c.ID, "error", err)
			failures = append(failures, CourseFailure{CourseID: c.ID, Err: err})
			if a.onError != nil {
				a.onError(c.ID, err)
			}
			continue
		}
		all = append(all, results[i]...)
	}

	slog.Info("assignments aggregated",
		"courses", len(courses),
		"assignments", len(all),
		"failed", len(failures),
	)

	if len(failures) > 0 {
		return all, &PartialAggregationError{Failures: failures}
	}
	return all, nil
}

func (a *Aggregator) fetchCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	resp, err := a.requester.Request(ctx, "/assignments", transport.Options{
		Method: http.MethodPost,
		Query:  url.Values{"course_id": {courseID}},
	})
	if err != nil {
		return nil, err
	}

	var list []models.Assignment
	if err := resp.Decode(&list); err != nil {
		return nil, err
	}
	for i := range list {
		list[i].CourseID = courseID
	}
	return list, nil
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
