package assignments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/pkg/client"
)

type courseHandler func(ctx context.Context) (*client.Response, error)

type fakeRequester struct {
	mu       sync.Mutex
	handlers map[string]courseHandler
	seen     []string
}

func (f *fakeRequester) Request(ctx context.Context, endpoint string, opts transport.Options) (*client.Response, error) {
	id := opts.Query.Get("course_id")
	f.mu.Lock()
	f.seen = append(f.seen, id)
	h := f.handlers[id]
	f.mu.Unlock()
	return h(ctx)
}

func ok(body string) courseHandler {
	return func(ctx context.Context) (*client.Response, error) {
		return &client.Response{StatusCode: 200, Body: []byte(body)}, nil
	}
}

func fail(err error) courseHandler {
	return func(ctx context.Context) (*client.Response, error) {
		return nil, err
	}
}

func courses(ids ...string) []models.Course {
	out := make([]models.Course, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Course{ID: id, Name: "Course " + id})
	}
	return out
}

func assignmentJSON(ids ...string) string {
	body := "["
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"assignment_id": %q, "name": "HW %s", "release_date": "2024-03-01T00:00:00Z", "due_date": "2024-03-06T09:00:00Z", "late_due_date": null, "submissions_status": "No Submission", "grade": null, "max_grade": 10}`, id, id)
	}
	return body + "]"
}

func keys(list []models.Assignment) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Key())
	}
	return out
}

func TestFetchAllToleratesOneFailure(t *testing.T) {
	boom := &transport.StatusError{Endpoint: "/assignments", StatusCode: 500}
	f := &fakeRequester{handlers: map[string]courseHandler{
		"1": ok(assignmentJSON("a", "b")),
		"2": fail(boom),
		"3": ok(assignmentJSON("c")),
	}}

	var reported []string
	agg := NewAggregator(f, WithErrorHandler(func(courseID string, err error) {
		reported = append(reported, courseID)
	}))

	got, err := agg.FetchAll(context.Background(), courses("1", "2", "3"))
	assert.Equal(t, []string{"1/a", "1/b", "3/c"}, keys(got))
	assert.Equal(t, []string{"2"}, reported)

	var partial *PartialAggregationError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"2"}, partial.CourseIDs())
	assert.ErrorIs(t, err, boom)
}

func TestFetchAllOrderIndependentOfCompletion(t *testing.T) {
	slow := func(ctx context.Context) (*client.Response, error) {
		time.Sleep(20 * time.Millisecond)
		return ok(assignmentJSON("x"))(ctx)
	}
	f := &fakeRequester{handlers: map[string]courseHandler{
		"1": slow,
		"2": ok(assignmentJSON("y")),
	}}

	got, err := NewAggregator(f).FetchAll(context.Background(), courses("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1/x", "2/y"}, keys(got))
	for _, a := range got {
		assert.NotEmpty(t, a.CourseID)
	}
}

func TestFetchAllRunsConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(3)
	barrier := func(ctx context.Context) (*client.Response, error) {
		wg.Done()
		// every request must be in flight before any can finish
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return ok("[]")(ctx)
		case <-time.After(2 * time.Second):
			return nil, errors.New("requests were serialized")
		}
	}
	f := &fakeRequester{handlers: map[string]courseHandler{"1": barrier, "2": barrier, "3": barrier}}

	got, err := NewAggregator(f).FetchAll(context.Background(), courses("1", "2", "3"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchAllCancellationIsNotReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := func(ctx context.Context) (*client.Response, error) {
		<-ctx.Done()
		return nil, &transport.TransportError{Endpoint: "/assignments", Err: ctx.Err()}
	}
	f := &fakeRequester{handlers: map[string]courseHandler{
		"1": ok(assignmentJSON("a")),
		"2": blocked,
	}}

	var reported int
	agg := NewAggregator(f, WithErrorHandler(func(string, error) { reported++ }))

	time.AfterFunc(20*time.Millisecond, cancel)
	got, err := agg.FetchAll(ctx, courses("1", "2"))
	assert.NoError(t, err)
	assert.Equal(t, 0, reported)
	assert.Equal(t, []string{"1/a"}, keys(got))
}

func TestFetchAllRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	tracked := func(ctx context.Context) (*client.Response, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return ok("[]")(ctx)
	}
	handlers := map[string]courseHandler{}
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		handlers[id] = tracked
	}

	_, err := NewAggregator(&fakeRequester{handlers: handlers}, WithConcurrency(2)).
		FetchAll(context.Background(), courses("1", "2", "3", "4", "5"))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestFetchAllRejectsNonArrayBody(t *testing.T) {
	f := &fakeRequester{handlers: map[string]courseHandler{"1": ok(`{"assignment_id": "a"}`)}}
	got, err := NewAggregator(f).FetchAll(context.Background(), courses("1"))
	assert.Empty(t, got)

	var partial *PartialAggregationError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"1"}, partial.CourseIDs())
}
