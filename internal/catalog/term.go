package catalog

import (
	"fmt"
	"strings"

	"github.com/terra-clan/duewatch/internal/models"
)

// Order tells which end of the catalog holds the newest enrollments
type Order int

const (
	NewestLast  Order = iota // service appends new enrollments
	NewestFirst              // service lists newest first
)

// ParseOrder parses "newest_last" or "newest_first"
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest_last":
		return NewestLast, nil
	case "newest_first":
		return NewestFirst, nil
	}
	return NewestLast, fmt.Errorf("unknown catalog order %q", s)
}

func (o Order) String() string {
	if o == NewestFirst {
		return "newest_first"
	}
	return "newest_last"
}

// SelectCurrent returns the maximal run of newest courses sharing the
// semester of the newest one, newest first. Year is not compared: the
// catalog's own order already separates terms.
func SelectCurrent(courses models.OrderedCourses, order Order) []models.Course {
	n := courses.Len()
	current := make([]models.Course, 0, n)
	if n == 0 {
		return current
	}

	at := func(i int) models.Course {
		if order == NewestFirst {
			return courses.At(i)
		}
		return courses.At(n - 1 - i)
	}

	semester := at(0).Semester
	for i := 0; i < n; i++ {
		c := at(i)
		if c.Semester != semester {
			break
		}
		current = append(current, c)
	}
	return current
}
