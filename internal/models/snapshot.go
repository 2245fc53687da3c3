package models

import "time"

// Snapshot is the result of one completed aggregation cycle
type Snapshot struct {
	ID              string       `json:"id"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Courses         []Course     `json:"courses"`
	Missing         []Assignment `json:"missing"`
	FailedCourses   []string     `json:"failed_courses,omitempty"`
	AssignmentsSeen int          `json:"assignments_seen"`
}

// CourseNames indexes the snapshot's courses by id
func (s *Snapshot) CourseNames() map[string]Course {
	names := make(map[string]Course, len(s.Courses))
	for _, c := range s.Courses {
		names[c.ID] = c
	}
	return names
}

// Partial returns true if some courses could not be fetched
func (s *Snapshot) Partial() bool {
	return len(s.FailedCourses) > 0
}
