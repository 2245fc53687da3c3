// Package dashboard runs aggregation cycles (catalog -> current term ->
// assignments -> missing -> weeks) and serves the resulting week views.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/duewatch/internal/assignments"
	"github.com/terra-clan/duewatch/internal/catalog"
	"github.com/terra-clan/duewatch/internal/metrics"
	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/storage"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/internal/weeks"
)

var (
	// ErrCancelled is returned when a cycle was superseded or cancelled
	// before its results were published
	ErrCancelled = errors.New("refresh cancelled")
	// ErrNoSnapshot is returned when no cycle has completed yet
	ErrNoSnapshot = errors.New("no dashboard data yet")
	// ErrInvalidWeek is returned for a malformed week key
	ErrInvalidWeek = errors.New("invalid week")
)

// Sessions is the part of session.Store the service drives
type Sessions interface {
	Login(ctx context.Context, email, password string) (models.Session, error)
	Logout(ctx context.Context)
	Snapshot() models.Session
	Subscribe() (<-chan models.SessionState, func())
}

// CatalogSource fetches the course catalog
type CatalogSource interface {
	FetchCatalog(ctx context.Context) (*models.CourseCatalog, error)
	Forget()
}

// AssignmentSource fetches assignments for a set of courses
type AssignmentSource interface {
	FetchAll(ctx context.Context, courses []models.Course) ([]models.Assignment, error)
}

// Config holds the service's tunables
type Config struct {
	Order    catalog.Order
	Location *time.Location
}

// Service owns the aggregation cycle and the latest published snapshot
type Service struct {
	sessions    Sessions
	catalog     CatalogSource
	assignments AssignmentSource
	repo        storage.Repository
	metrics     *metrics.Metrics

	order catalog.Order
	loc   *time.Location
	now   func() time.Time

	// cycleMu serializes cycles; mu guards the running cycle's cancel func
	cycleMu     sync.Mutex
	mu          sync.Mutex
	cycleID     string
	cancelCycle context.CancelFunc

	viewMu  sync.RWMutex
	latest  *models.Snapshot
	buckets weeks.Buckets
}

// NewService wires the pipeline. repo and m may be nil.
func NewService(sessions Sessions, cat CatalogSource, agg AssignmentSource, repo storage.Repository, m *metrics.Metrics, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		sessions:    sessions,
		catalog:     cat,
		assignments: agg,
		repo:        repo,
		metrics:     m,
		order:       cfg.Order,
		loc:         loc,
		now:         time.Now,
	}
}

// Login authenticates and runs the first cycle
func (s *Service) Login(ctx context.Context, email, password string) (*models.Snapshot, error) {
	if _, err := s.sessions.Login(ctx, email, password); err != nil {
		return nil, err
	}
	s.catalog.Forget()
	return s.Refresh(ctx)
}

// Logout cancels any running cycle, ends the session and drops the view
func (s *Service) Logout(ctx context.Context) {
	s.Cancel()
	s.sessions.Logout(ctx)
	s.reset()
}

// Session returns the current session state
func (s *Service) Session() models.Session {
	return s.sessions.Snapshot()
}

// Subscribe streams session state transitions
func (s *Service) Subscribe() (<-chan models.SessionState, func()) {
	return s.sessions.Subscribe()
}

// Cancel aborts the running cycle, if any
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
}

// Refresh runs one aggregation cycle. A cycle already in flight is
// cancelled first. Per-course failures are reported in the snapshot's
// FailedCourses; a rejected session aborts the whole cycle.
func (s *Service) Refresh(ctx context.Context) (*models.Snapshot, error) {
	cycleCtx, cycleID := s.beginCycle(ctx)

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	defer s.endCycle(cycleID)

	start := s.now()
	log := slog.With("cycle_id", cycleID)
	log.Info("refresh started")

	cat, err := s.catalog.FetchCatalog(cycleCtx)
	if err != nil {
		if cycleCtx.Err() != nil {
			s.observe(metrics.OutcomeCancelled, start)
			return nil, ErrCancelled
		}
		log.Error("refresh failed", "stage", "catalog", "error", err)
		s.observe(metrics.OutcomeFailed, start)
		return nil, err
	}

	current := catalog.SelectCurrent(cat.Student, s.order)
	if len(current) > 0 {
		log = log.With("term", current[0].Term())
	}
	log.Debug("current term selected", "courses", len(current))

	all, err := s.assignments.FetchAll(cycleCtx, current)

	// results of a cancelled cycle are never published, complete or not
	if cycleCtx.Err() != nil {
		log.Info("refresh cancelled")
		s.observe(metrics.OutcomeCancelled, start)
		return nil, ErrCancelled
	}

	var failed []string
	if err != nil {
		var partial *assignments.PartialAggregationError
		if !errors.As(err, &partial) {
			s.observe(metrics.OutcomeFailed, start)
			return nil, err
		}
		if errors.Is(err, transport.ErrSessionExpired) || errors.Is(err, transport.ErrNoSession) {
			log.Warn("refresh aborted, session rejected", "error", err)
			s.observe(metrics.OutcomeFailed, start)
			return nil, fmt.Errorf("refresh aborted: %w", err)
		}
		failed = partial.CourseIDs()
		for _, id := range failed {
			if s.metrics != nil {
				s.metrics.CourseFailed(id)
			}
		}
	}

	missing := assignments.FilterMissing(all)
	snap := &models.Snapshot{
		ID:              cycleID,
		GeneratedAt:     s.now(),
		Courses:         current,
		Missing:         missing,
		FailedCourses:   failed,
		AssignmentsSeen: len(all),
	}

	if !s.publish(cycleCtx, cycleID, snap) {
		log.Info("refresh cancelled before publish")
		s.observe(metrics.OutcomeCancelled, start)
		return nil, ErrCancelled
	}

	if s.repo != nil {
		if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
			log.Warn("failed to save snapshot", "error", err)
		}
	}

	outcome := metrics.OutcomeOK
	if snap.Partial() {
		outcome = metrics.OutcomePartial
	}
	s.observe(outcome, start)
	if s.metrics != nil {
		s.metrics.SetMissing(len(missing))
	}

	log.Info("refresh completed",
		"courses", len(current),
		"assignments", len(all),
		"missing", len(missing),
		"failed_courses", len(failed),
		"duration", s.now().Sub(start),
	)
	return snap, nil
}

// Latest returns the last published snapshot, or nil
func (s *Service) Latest() *models.Snapshot {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.latest
}

// History returns up to limit stored snapshots, newest first
func (s *Service) History(ctx context.Context, limit int) ([]*models.Snapshot, error) {
	if s.repo == nil {
		return nil, nil
	}
	snaps, err := s.repo.ListSnapshots(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snaps, nil
}

// LoadLatest publishes the newest stored snapshot, if any
func (s *Service) LoadLatest(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snap, err := s.repo.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	s.install(snap)
	slog.Info("snapshot restored", "snapshot_id", snap.ID, "generated_at", snap.GeneratedAt)
	return nil
}

// Watch reacts to session transitions until ctx is done: leaving the
// authenticated state cancels the running cycle and drops cached data.
func (s *Service) Watch(ctx context.Context) {
	events, unsubscribe := s.sessions.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			if s.metrics != nil {
				s.metrics.SessionTransition(string(state))
			}
			// a newer login may already have superseded this transition
			if !state.IsAuthenticated() && !s.sessions.Snapshot().Authenticated {
				slog.Info("session ended, clearing dashboard", "state", state)
				s.Cancel()
				s.reset()
			}
		}
	}
}

func (s *Service) beginCycle(ctx context.Context) (context.Context, string) {
	cycleCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	s.mu.Lock()
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.cycleID = id
	s.cancelCycle = cancel
	s.mu.Unlock()

	return cycleCtx, id
}

func (s *Service) endCycle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycleID == id {
		s.cancelCycle()
		s.cancelCycle = nil
		s.cycleID = ""
	}
}

// publish installs snap as the latest view unless its cycle was cancelled
// or superseded. The check and the swap share mu with Cancel.
func (s *Service) publish(cycleCtx context.Context, cycleID string, snap *models.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycleID != cycleID || cycleCtx.Err() != nil {
		return false
	}
	s.install(snap)
	return true
}

func (s *Service) install(snap *models.Snapshot) {
	b := weeks.Group(snap.Missing, s.loc)

	s.viewMu.Lock()
	s.latest = snap
	s.buckets = b
	s.viewMu.Unlock()
}

func (s *Service) reset() {
	s.catalog.Forget()

	s.viewMu.Lock()
	s.latest = nil
	s.buckets = nil
	s.viewMu.Unlock()
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCycle(outcome, s.now().Sub(start))
	}
}
