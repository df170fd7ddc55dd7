package normalize

import (
	"fmt"
	"strings"
	"time"

	"ehs/internal/domain"
)

var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	time.RFC3339,
}

// ParseDate reads the date formats published by either agency and returns
// midnight UTC of that calendar day.
func ParseDate(s string) (time.Time, error) {
	s = collapseSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 {
			t = t.UTC()
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// optionalDate parses a payload date that may be blank.
func optionalDate(raw domain.RawRecord, field string) (*time.Time, error) {
	v := raw.Field(field)
	if v == "" || strings.EqualFold(v, "n/a") {
		return nil, nil
	}
	t, err := ParseDate(v)
	if err != nil {
		return nil, &domain.ValidationError{Field: field, Reason: domain.ReasonFormat, Detail: err.Error()}
	}
	return &t, nil
}
