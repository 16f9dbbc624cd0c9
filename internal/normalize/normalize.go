// Package normalize shapes raw provider events into canonical event
// records, filling the defaults the durable contract expects.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hajkuron/notion-githubchart/internal/model"
)

// ErrMissingTimeField is returned when a raw event has neither a timed
// nor a date-only representation for its start or end.
var ErrMissingTimeField = errors.New("event has no usable time field")

// ValueRule adjusts the chart weight of matching events. An event
// matches when its calendar equals Calendar and its summary contains
// Keyword, both case-insensitively.
//
// The stock configuration carries one rule: rest days in the fitness
// calendar count 0.5 instead of 1.
type ValueRule struct {
	Calendar string
	Keyword  string
	Value    float64
}

// Matches reports whether the rule applies to the given event.
func (r ValueRule) Matches(calendarName, summary string) bool {
	return strings.EqualFold(r.Calendar, calendarName) &&
		strings.Contains(strings.ToLower(summary), strings.ToLower(r.Keyword))
}

// Normalize converts one raw provider event into an EventRecord for the
// given calendar. It prefers the precise timestamp over the bare date,
// substitutes the placeholder summary and an empty description when
// absent, and applies the first matching value rule (default weight 1).
//
// Status is left unset; it is assigned by reconciliation. The new_*
// shadow fields start empty.
func Normalize(raw model.RawEvent, calendarName string, rules []ValueRule) (model.EventRecord, error) {
	if raw.Start.IsZero() {
		return model.EventRecord{}, fmt.Errorf("%w: start", ErrMissingTimeField)
	}
	if raw.End.IsZero() {
		return model.EventRecord{}, fmt.Errorf("%w: end", ErrMissingTimeField)
	}

	summary := raw.Summary
	if summary == "" {
		summary = model.PlaceholderSummary
	}

	start := raw.Start.Stamp()
	rec := model.EventRecord{
		Date:         model.DatePart(start),
		Start:        start,
		End:          raw.End.Stamp(),
		Value:        valueFor(calendarName, summary, rules),
		Summary:      summary,
		Description:  raw.Description,
		CalendarName: calendarName,
	}
	return rec, nil
}

func valueFor(calendarName, summary string, rules []ValueRule) float64 {
	for _, r := range rules {
		if r.Matches(calendarName, summary) {
			return r.Value
		}
	}
	return 1
}
