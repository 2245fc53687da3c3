package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Course is one enrollment as reported by the course service
type Course struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	FullName           string  `json:"full_name"`
	Semester           string  `json:"semester"`
	Year               int     `json:"year"`
	NumAssignments     string  `json:"num_assignments"`
	NumGradesPublished *string `json:"num_grades_published"`
}

// UnmarshalJSON normalizes the loosely typed wire fields
func (c *Course) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID                 FlexString  `json:"id"`
		Name               string      `json:"name"`
		FullName           string      `json:"full_name"`
		Semester           string      `json:"semester"`
		Year               FlexInt     `json:"year"`
		NumAssignments     FlexString  `json:"num_assignments"`
		NumGradesPublished *FlexString `json:"num_grades_published"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*c = Course{
		ID:             string(wire.ID),
		Name:           wire.Name,
		FullName:       wire.FullName,
		Semester:       wire.Semester,
		Year:           int(wire.Year),
		NumAssignments: string(wire.NumAssignments),
	}
	if wire.NumGradesPublished != nil {
		s := string(*wire.NumGradesPublished)
		c.NumGradesPublished = &s
	}
	return nil
}

// Term returns the semester/year label, e.g. "Spring 2024"
func (c Course) Term() string {
	if c.Year == 0 {
		return c.Semester
	}
	return fmt.Sprintf("%s %d", c.Semester, c.Year)
}

// OrderedCourses is a course_id -> Course mapping that remembers the order
// in which the service listed its keys. The service appends new enrollments
// at the end, so the order carries recency.
type OrderedCourses struct {
	keys []string
	byID map[string]Course
}

// NewOrderedCourses builds a mapping in the given order. Course.ID is the key.
func NewOrderedCourses(courses ...Course) OrderedCourses {
	var o OrderedCourses
	for _, c := range courses {
		o.Set(c)
	}
	return o
}

// Set inserts or replaces a course. Replacing keeps the original position.
func (o *OrderedCourses) Set(c Course) {
	if o.byID == nil {
		o.byID = make(map[string]Course)
	}
	if _, exists := o.byID[c.ID]; !exists {
		o.keys = append(o.keys, c.ID)
	}
	o.byID[c.ID] = c
}

// Len returns the number of courses
func (o OrderedCourses) Len() int {
	return len(o.keys)
}

// At returns the i-th course in declared order
func (o OrderedCourses) At(i int) Course {
	return o.byID[o.keys[i]]
}

// Get looks up a course by id
func (o OrderedCourses) Get(id string) (Course, bool) {
	c, ok := o.byID[id]
	return c, ok
}

// Keys returns course ids in declared order
func (o OrderedCourses) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// List returns courses in declared order
func (o OrderedCourses) List() []Course {
	list := make([]Course, 0, len(o.keys))
	for _, k := range o.keys {
		list = append(list, o.byID[k])
	}
	return list
}

// UnmarshalJSON decodes a JSON object token by token to keep key order
func (o *OrderedCourses) UnmarshalJSON(data []byte) error {
	*o = OrderedCourses{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected course object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to read course %s: %w", key, err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return fmt.Errorf("invalid course data for %s", key)
		}

		var c Course
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("failed to decode course %s: %w", key, err)
		}
		c.ID = key
		o.Set(c)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON writes the object back in declared order
func (o OrderedCourses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.byID[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CourseCatalog is the full enrollment listing, split by role
type CourseCatalog struct {
	Instructor OrderedCourses `json:"instructor"`
	Student    OrderedCourses `json:"student"`
}
