package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveCycle(OutcomeOK, 120*time.Millisecond)
	m.ObserveCycle(OutcomeOK, 80*time.Millisecond)
	m.ObserveCycle(OutcomePartial, time.Second)
	m.CourseFailed("42")
	m.SetMissing(3)
	m.SessionTransition("expired")

	body := scrape(t, m)
	assert.Contains(t, body, `duewatch_refresh_cycles_total{outcome="ok"} 2`)
	assert.Contains(t, body, `duewatch_refresh_cycles_total{outcome="partial"} 1`)
	assert.Contains(t, body, `duewatch_refresh_cycle_duration_seconds_count 3`)
	assert.Contains(t, body, `duewatch_course_fetch_failures_total{course_id="42"} 1`)
	assert.Contains(t, body, `duewatch_missing_assignments 3`)
	assert.Contains(t, body, `duewatch_session_transitions_total{state="expired"} 1`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SetMissing(7)

	assert.Contains(t, scrape(t, a), "duewatch_missing_assignments 7")
	assert.Contains(t, scrape(t, b), "duewatch_missing_assignments 0")
}
