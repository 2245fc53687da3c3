package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The backend is loose about scalar types: ids and counters show up as
// either strings or numbers, and optional fields as null. These helpers
// normalize them at decode time so the rest of the module sees one shape.

// FlexString decodes a JSON string or number into a string. null decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// FlexInt decodes a JSON number or numeric string into an int.
// null and "" decode to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil {
		return fmt.Errorf("invalid integer %q", string(s))
	}
	*f = FlexInt(n)
	return nil
}

// FlexFloat decodes a JSON number, numeric string or null.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if strings.TrimSpace(string(s)) == "" {
		*f = FlexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", string(s))
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// Ptr returns nil when the value was absent.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 timestamps and the offset-less forms the
// backend emits. Offset-less values are wall-clock times in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FlexTime decodes a timestamp string or null.
type FlexTime struct {
	Time  time.Time
	Valid bool
}

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = FlexTime{}
		return nil
	}
	t, err := ParseTimestamp(string(s), time.Local)
	if err != nil {
		return err
	}
	*f = FlexTime{Time: t, Valid: true}
	return nil
}

// Ptr returns nil when the value was absent.
func (f FlexTime) Ptr() *time.Time {
	if !f.Valid {
		return nil
	}
	t := f.Time
	return &t
}
