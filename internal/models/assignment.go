package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus is the student's submission state for an assignment
type SubmissionStatus string

const (
	StatusSubmitted      SubmissionStatus = "Submitted"
	StatusGraded         SubmissionStatus = "Graded"
	StatusLateSubmission SubmissionStatus = "Late Submission"
	StatusExcused        SubmissionStatus = "Excused"
	StatusNoSubmission   SubmissionStatus = "No Submission"
)

// IsMissing reports whether nothing was handed in.
// Only an explicit "No Submission" counts; unknown statuses never do.
func (s SubmissionStatus) IsMissing() bool {
	return s == StatusNoSubmission
}

// IsKnown returns true for statuses in the enumerated set
func (s SubmissionStatus) IsKnown() bool {
	switch s {
	case StatusSubmitted, StatusGraded, StatusLateSubmission, StatusExcused, StatusNoSubmission:
		return true
	}
	return false
}

// Assignment is one piece of coursework, stamped with its owning course
type Assignment struct {
	AssignmentID      string           `json:"assignment_id"`
	Name              string           `json:"name"`
	ReleaseDate       time.Time        `json:"release_date"`
	DueDate           time.Time        `json:"due_date"`
	LateDueDate       *time.Time       `json:"late_due_date"`
	SubmissionsStatus SubmissionStatus `json:"submissions_status"`
	Grade             *float64         `json:"grade"`
	MaxGrade          *float64         `json:"max_grade"`
	CourseID          string           `json:"course_id"`
}

// UnmarshalJSON normalizes ids, timestamps and grades from the wire
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var wire struct {
		AssignmentID      FlexString `json:"assignment_id"`
		Name              string     `json:"name"`
		ReleaseDate       FlexTime   `json:"release_date"`
		DueDate           FlexTime   `json:"due_date"`
		LateDueDate       FlexTime   `json:"late_due_date"`
		SubmissionsStatus string     `json:"submissions_status"`
		Grade             FlexFloat  `json:"grade"`
		MaxGrade          FlexFloat  `json:"max_grade"`
		CourseID          FlexString `json:"course_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*a = Assignment{
		AssignmentID:      string(wire.AssignmentID),
		Name:              wire.Name,
		ReleaseDate:       wire.ReleaseDate.Time,
		DueDate:           wire.DueDate.Time,
		LateDueDate:       wire.LateDueDate.Ptr(),
		SubmissionsStatus: SubmissionStatus(wire.SubmissionsStatus),
		Grade:             wire.Grade.Ptr(),
		MaxGrade:          wire.MaxGrade.Ptr(),
		CourseID:          string(wire.CourseID),
	}
	return nil
}

// Key identifies an assignment across courses
func (a Assignment) Key() string {
	return a.CourseID + "/" + a.AssignmentID
}

// MissingAssignment is an assignment joined with its course names for display
type MissingAssignment struct {
	Assignment     Assignment `json:"assignment"`
	CourseName     string     `json:"course_name"`
	CourseFullName string     `json:"course_full_name"`
	DueStatus      string     `json:"due_status,omitempty"`
}
