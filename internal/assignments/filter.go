package assignments

import (
	"log/slog"

	"github.com/terra-clan/duewatch/internal/models"
)

// FilterMissing keeps assignments with no submission, in input order.
// Unrecognised statuses are never treated as missing.
func FilterMissing(assignments []models.Assignment) []models.Assignment {
	missing := make([]models.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if !a.SubmissionsStatus.IsKnown() {
			slog.Warn("unknown submission status",
				"assignment_id", a.AssignmentID,
				"course_id", a.CourseID,
				"status", a.SubmissionsStatus,
			)
			continue
		}
		if a.SubmissionsStatus.IsMissing() {
			missing = append(missing, a)
		}
	}
	return missing
}
