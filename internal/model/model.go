package model

import (
	"errors"
	"strings"
	"time"
)

// Status describes where a historical record sits in its lifecycle
// relative to the most recent snapshot of its calendar.
type Status string

const (
	StatusNew       Status = "new"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
	StatusDeleted   Status = "deleted"
)

// PlaceholderSummary is used when a provider event carries no title.
const PlaceholderSummary = "(No title)"

// EventRecord is the canonical, durable shape of one observed calendar
// event. The JSON field set is the on-disk contract of the historical
// store and of the calendar_events table; adding fields is backward
// compatible, removing or renaming one is a breaking migration.
//
// Date, Start and End are carried as the provider's ISO strings
// (RFC3339 for timed events, YYYY-MM-DD for all-day events). The
// identity hashes are computed over these exact strings, so the textual
// form is part of the identity contract, not a presentation detail.
type EventRecord struct {
	// ID is the stable identity: it survives time shifts within the
	// same calendar date and changes when summary, description,
	// calendar or date change.
	ID string `json:"id"`

	// VersionID is the content fingerprint: it changes whenever any
	// tracked field, including the exact start/end, changes.
	VersionID string `json:"version_id"`

	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`

	// Value is the numeric weight of the event in the activity chart.
	Value float64 `json:"value"`

	Summary      string `json:"summary"`
	Description  string `json:"description"`
	CalendarName string `json:"calendar_name"`

	Status Status `json:"status"`

	// NewDate/NewStart/NewEnd shadow the primary time fields. They are
	// populated only for new and modified records and hold the latest
	// observed time, while Date/Start/End keep the originally observed
	// time for history.
	NewDate  string `json:"new_date"`
	NewStart string `json:"new_start"`
	NewEnd   string `json:"new_end"`
}

// RawTime is a provider-side time representation: either a precise
// timestamp or a bare calendar date for all-day events.
type RawTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// IsZero reports whether neither representation is present.
func (t RawTime) IsZero() bool {
	return t.DateTime == "" && t.Date == ""
}

// Stamp returns the preferred textual form: the precise timestamp when
// available, otherwise the bare date.
func (t RawTime) Stamp() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// RawEvent is a provider event as delivered by a calendar source,
// before normalization. Summary and Description may be absent.
type RawEvent struct {
	Summary     string  `json:"summary,omitempty"`
	Description string  `json:"description,omitempty"`
	Start       RawTime `json:"start"`
	End         RawTime `json:"end"`
}

// ErrUnparseableStamp is returned when a time string is neither an
// RFC3339 timestamp nor a bare date.
var ErrUnparseableStamp = errors.New("unparseable time stamp")

const dateLayout = "2006-01-02"

// DatePart extracts the calendar-date bucket from a stamp: the text
// before the 'T' separator, or the whole string for date-only stamps.
func DatePart(stamp string) string {
	if i := strings.IndexByte(stamp, 'T'); i >= 0 {
		return stamp[:i]
	}
	return stamp
}

// ParseStamp parses a record time string. Timed stamps must be RFC3339;
// date-only stamps are interpreted as midnight in loc (time.Local when
// loc is nil).
func ParseStamp(stamp string, loc *time.Location) (time.Time, error) {
	if stamp == "" {
		return time.Time{}, ErrUnparseableStamp
	}
	if loc == nil {
		loc = time.Local
	}
	if strings.ContainsRune(stamp, 'T') {
		t, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return time.Time{}, ErrUnparseableStamp
		}
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, stamp, loc)
	if err != nil {
		return time.Time{}, ErrUnparseableStamp
	}
	return t, nil
}

// FormatStamp renders a time in the record's textual form: bare date
// for all-day events, RFC3339 otherwise.
func FormatStamp(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}
