package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terra-clan/duewatch/internal/models"
)

func catalogOf(semesters ...string) models.OrderedCourses {
	var o models.OrderedCourses
	for i, s := range semesters {
		o.Set(models.Course{ID: fmt.Sprintf("c%d", i+1), Name: fmt.Sprintf("C%d", i+1), Semester: s, Year: 2024})
	}
	return o
}

func ids(courses []models.Course) []string {
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.ID)
	}
	return out
}

func TestSelectCurrent(t *testing.T) {
	tests := []struct {
		name      string
		semesters []string
		order     Order
		want      []string
	}{
		{name: "empty", order: NewestLast, want: []string{}},
		{name: "single", semesters: []string{"Fall"}, order: NewestLast, want: []string{"c1"}},
		{name: "all one semester", semesters: []string{"Fall", "Fall", "Fall"}, order: NewestLast, want: []string{"c3", "c2", "c1"}},
		{name: "newest last takes trailing run", semesters: []string{"S1", "S1", "S2", "S2", "S2"}, order: NewestLast, want: []string{"c5", "c4", "c3"}},
		{name: "newest first takes leading run", semesters: []string{"S1", "S1", "S2", "S2", "S2"}, order: NewestFirst, want: []string{"c1", "c2"}},
		{name: "stops at first difference", semesters: []string{"Spring", "Fall", "Spring"}, order: NewestLast, want: []string{"c3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCurrent(catalogOf(tt.semesters...), tt.order)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSelectCurrentIgnoresYear(t *testing.T) {
	o := models.NewOrderedCourses(
		models.Course{ID: "old", Semester: "Fall", Year: 2023},
		models.Course{ID: "new", Semester: "Fall", Year: 2024},
	)
	assert.Equal(t, []string{"new", "old"}, ids(SelectCurrent(o, NewestLast)))
}

func TestSelectCurrentIsContiguous(t *testing.T) {
	pattern := []string{"A", "B", "A", "A", "B", "B", "B"}
	for _, order := range []Order{NewestLast, NewestFirst} {
		got := ids(SelectCurrent(catalogOf(pattern...), order))
		all := catalogOf(pattern...).Keys()
		if order == NewestLast {
			for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
				all[i], all[j] = all[j], all[i]
			}
		}
		assert.Equal(t, all[:len(got)], got, "order %s", order)
	}
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("NEWEST_FIRST")
	assert.NoError(t, err)
	assert.Equal(t, NewestFirst, o)

	o, err = ParseOrder("")
	assert.NoError(t, err)
	assert.Equal(t, NewestLast, o)

	_, err = ParseOrder("sideways")
	assert.Error(t, err)
}
