package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marchWindow() ExpandConfig {
	return ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC),
	}
}

func timedEvent(uid string, start, end time.Time) ParsedEvent {
	return ParsedEvent{
		Source:  testSource,
		UID:     uid,
		Summary: "Gym",
		Start:   start,
		End:     end,
	}
}

func TestExpand_SingleEventInsideWindow(t *testing.T) {
	ev := timedEvent("single",
		time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 19, 0, 0, 0, time.UTC))

	occs, err := ExpandOccurrences([]ParsedEvent{ev}, marchWindow())
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, ev.Start, occs[0].Start)
	assert.Equal(t, ev.End, occs[0].End)
}

func TestExpand_SingleEventOutsideWindow(t *testing.T) {
	ev := timedEvent("outside",
		time.Date(2025, time.April, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 10, 19, 0, 0, 0, time.UTC))

	occs, err := ExpandOccurrences([]ParsedEvent{ev}, marchWindow())
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestExpand_DailyRecurrenceWithExDate(t *testing.T) {
	ev := timedEvent("daily",
		time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 19, 0, 0, 0, time.UTC))
	ev.RawRRule = "FREQ=DAILY;COUNT=3"
	ev.ExDates = []time.Time{time.Date(2025, time.March, 11, 18, 0, 0, 0, time.UTC)}

	occs, err := ExpandOccurrences([]ParsedEvent{ev}, marchWindow())
	require.NoError(t, err)
	require.Len(t, occs, 2, "middle occurrence removed by EXDATE")

	days := []int{occs[0].Start.Day(), occs[1].Start.Day()}
	assert.ElementsMatch(t, []int{10, 12}, days)
	for _, occ := range occs {
		assert.Equal(t, time.Hour, occ.End.Sub(occ.Start), "duration of the base event is preserved")
	}
}

func TestExpand_RecurrenceOverride(t *testing.T) {
	base := timedEvent("weekly",
		time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 19, 0, 0, 0, time.UTC))
	base.RawRRule = "FREQ=WEEKLY;COUNT=2"

	rid := time.Date(2025, time.March, 17, 18, 0, 0, 0, time.UTC)
	override := timedEvent("weekly",
		time.Date(2025, time.March, 17, 20, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 17, 21, 0, 0, 0, time.UTC))
	override.Recurrence = &rid
	override.IsOverride = true

	occs, err := ExpandOccurrences([]ParsedEvent{base, override}, marchWindow())
	require.NoError(t, err)
	require.Len(t, occs, 2)

	var overridden bool
	for _, occ := range occs {
		if occ.Start.Day() == 17 {
			assert.Equal(t, 20, occ.Start.Hour(), "override replaces the instance time")
			overridden = true
		}
	}
	assert.True(t, overridden)
}

func TestExpand_AllDayCivilDatePreserved(t *testing.T) {
	// GIVEN: an all-day event parsed at midnight UTC but a reference
	// timezone west of UTC
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	ev := ParsedEvent{
		Source:  testSource,
		UID:     "allday",
		Summary: "Conference",
		AllDay:  true,
		Start:   time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC),
	}
	cfg := marchWindow()
	cfg.Location = ny

	occs, err := ExpandOccurrences([]ParsedEvent{ev}, cfg)
	require.NoError(t, err)
	require.Len(t, occs, 1)

	// THEN: the calendar date does not shift with the zone conversion
	assert.Equal(t, 11, occs[0].Start.Day())
	assert.Equal(t, 0, occs[0].Start.Hour())
	assert.Equal(t, ny, occs[0].Start.Location())
}

func TestExpand_InvalidWindow(t *testing.T) {
	cfg := marchWindow()
	cfg.RangeStart, cfg.RangeEnd = cfg.RangeEnd, cfg.RangeStart

	_, err := ExpandOccurrences(nil, cfg)
	assert.Error(t, err)
}

func TestOccurrenceToRaw(t *testing.T) {
	timed := Occurrence{
		Summary:     "Standup",
		Description: "daily sync",
		Start:       time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2025, time.March, 10, 9, 15, 0, 0, time.UTC),
	}
	raw := occurrenceToRaw(timed)
	assert.Equal(t, "2025-03-10T09:00:00Z", raw.Start.DateTime)
	assert.Equal(t, "2025-03-10T09:15:00Z", raw.End.DateTime)
	assert.Empty(t, raw.Start.Date)

	allDay := Occurrence{
		Summary: "Conference",
		AllDay:  true,
		Start:   time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC),
	}
	raw = occurrenceToRaw(allDay)
	assert.Equal(t, "2025-03-11", raw.Start.Date)
	assert.Equal(t, "2025-03-12", raw.End.Date)
	assert.Empty(t, raw.Start.DateTime)
}
