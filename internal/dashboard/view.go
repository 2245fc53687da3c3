package dashboard

import (
	"fmt"
	"time"

	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/weeks"
)

// WeekView is one calendar week of missing work, ready for display
type WeekView struct {
	Week        string    `json:"week"`
	Label       string    `json:"label"`
	Days        []DayView `json:"days"`
	TaskCount   int       `json:"task_count"`
	HasPrevious bool      `json:"has_previous"`
	HasNext     bool      `json:"has_next"`
	Available   []string  `json:"available_weeks"`
	SnapshotID  string    `json:"snapshot_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// DayView is one day of a WeekView
type DayView struct {
	Date        string                     `json:"date"`
	Name        string                     `json:"name"`
	Assignments []models.MissingAssignment `json:"assignments"`
}

// View renders the week containing week (a Monday key), moved by nav when
// nav is non-zero. An empty week selects the current week if it has work,
// else the earliest week with work.
func (s *Service) View(week string, nav weeks.Direction) (*WeekView, error) {
	if week != "" {
		t, err := time.Parse(weeks.DateLayout, week)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeek, week)
		}
		// any day of the week selects its Monday
		week = weeks.WeekKey(t, time.UTC)
	}

	s.viewMu.RLock()
	snap, buckets := s.latest, s.buckets
	s.viewMu.RUnlock()

	if snap == nil {
		return nil, ErrNoSnapshot
	}

	now := s.now()
	available := weeks.Available(buckets)
	if week == "" {
		week = weeks.InitialKey(available, weeks.CurrentKey(now, s.loc))
	}
	if week == "" {
		week = weeks.CurrentKey(now, s.loc)
	}
	if nav != 0 {
		week = weeks.Advance(available, week, nav)
	}

	label, err := weeks.RangeLabel(week)
	if err != nil {
		return nil, err
	}
	dayKeys, err := weeks.Days(week)
	if err != nil {
		return nil, err
	}

	courses := snap.CourseNames()
	bucket := buckets[week]

	view := &WeekView{
		Week:        week,
		Label:       label,
		Days:        make([]DayView, 0, len(dayKeys)),
		TaskCount:   bucket.Count(),
		HasPrevious: weeks.HasPrevious(available, week),
		HasNext:     weeks.HasNext(available, week),
		Available:   available,
		SnapshotID:  snap.ID,
		GeneratedAt: snap.GeneratedAt,
		Warnings:    snap.FailedCourses,
	}

	for _, day := range dayKeys {
		name, _ := weeks.DayName(day)
		items := make([]models.MissingAssignment, 0, len(bucket[day]))
		for _, a := range bucket[day] {
			course := courses[a.CourseID]
			items = append(items, models.MissingAssignment{
				Assignment:     a,
				CourseName:     course.Name,
				CourseFullName: course.FullName,
				DueStatus:      weeks.DueStatus(a.DueDate, now, s.loc),
			})
		}
		view.Days = append(view.Days, DayView{Date: day, Name: name, Assignments: items})
	}

	return view, nil
}
