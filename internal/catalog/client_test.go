package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/pkg/client"
)

type stubRequester struct {
	body  string
	err   error
	calls int
}

func (s *stubRequester) Request(ctx context.Context, endpoint string, opts transport.Options) (*client.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &client.Response{StatusCode: 200, Body: []byte(s.body)}, nil
}

const catalogJSON = `{
	"instructor": {},
	"student": {
		"900": {"name": "CS 61A", "full_name": "Structure", "semester": "Fall", "year": "2023", "num_grades_published": null, "num_assignments": 12},
		"120": {"name": "MATH 54", "full_name": "Linear Algebra", "semester": "Spring", "year": 2024, "num_grades_published": "3", "num_assignments": "8"},
		"450": {"name": "CS 70", "full_name": "Discrete Math", "semester": "Spring", "year": 2024, "num_grades_published": null, "num_assignments": "5"}
	}
}`

func TestFetchCatalogPreservesOrder(t *testing.T) {
	r := &stubRequester{body: catalogJSON}
	cat, err := NewClient(r).FetchCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"900", "120", "450"}, cat.Student.Keys())
	assert.Equal(t, 0, cat.Instructor.Len())

	first := cat.Student.At(0)
	assert.Equal(t, "900", first.ID)
	assert.Equal(t, 2023, first.Year)
	assert.Equal(t, "12", first.NumAssignments)
	assert.Nil(t, first.NumGradesPublished)

	current := SelectCurrent(cat.Student, NewestLast)
	assert.Equal(t, []string{"450", "120"}, ids(current))
}

func TestFetchCatalogWrapsFailures(t *testing.T) {
	r := &stubRequester{err: transport.ErrSessionExpired}
	_, err := NewClient(r).FetchCatalog(context.Background())

	var fetchErr *CatalogFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.ErrorIs(t, err, transport.ErrSessionExpired)

	r = &stubRequester{body: `{"student": {"1": null}}`}
	_, err = NewClient(r).FetchCatalog(context.Background())
	assert.True(t, errors.As(err, &fetchErr))
}

func TestFetchCatalogCache(t *testing.T) {
	token := "tok-1"
	r := &stubRequester{body: catalogJSON}
	c := NewClient(r, WithCache(time.Minute, func() (string, bool) { return token, token != "" }))

	_, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)
	_, err = c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)

	token = "tok-2"
	_, err = c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)

	c.Forget()
	_, err = c.FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, r.calls)
}
