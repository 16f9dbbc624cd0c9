package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hajkuron/notion-githubchart/internal/model"
	"github.com/hajkuron/notion-githubchart/internal/normalize"
)

func fitnessRules() []normalize.ValueRule {
	return []normalize.ValueRule{
		{Calendar: "Fitness", Keyword: "rest", Value: 0.5},
	}
}

func TestNormalize_TimedEvent(t *testing.T) {
	raw := model.RawEvent{
		Summary:     "Standup",
		Description: "daily sync",
		Start:       model.RawTime{DateTime: "2025-03-10T09:00:00+01:00"},
		End:         model.RawTime{DateTime: "2025-03-10T09:15:00+01:00"},
	}

	rec, err := normalize.Normalize(raw, "Work", fitnessRules())
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10T09:00:00+01:00", rec.Start)
	assert.Equal(t, "2025-03-10T09:15:00+01:00", rec.End)
	assert.Equal(t, "2025-03-10", rec.Date)
	assert.Equal(t, "Standup", rec.Summary)
	assert.Equal(t, "daily sync", rec.Description)
	assert.Equal(t, "Work", rec.CalendarName)
	assert.Equal(t, 1.0, rec.Value)
	assert.Empty(t, rec.Status, "status is assigned by reconciliation")
	assert.Empty(t, rec.NewDate)
	assert.Empty(t, rec.NewStart)
	assert.Empty(t, rec.NewEnd)
}

func TestNormalize_PrefersDateTimeOverDate(t *testing.T) {
	raw := model.RawEvent{
		Summary: "Trip",
		Start:   model.RawTime{DateTime: "2025-03-10T08:00:00Z", Date: "2025-03-10"},
		End:     model.RawTime{DateTime: "2025-03-10T10:00:00Z", Date: "2025-03-10"},
	}

	rec, err := normalize.Normalize(raw, "Personal", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10T08:00:00Z", rec.Start)
}

func TestNormalize_AllDayFallsBackToDate(t *testing.T) {
	raw := model.RawEvent{
		Summary: "Conference",
		Start:   model.RawTime{Date: "2025-03-10"},
		End:     model.RawTime{Date: "2025-03-11"},
	}

	rec, err := normalize.Normalize(raw, "Work", nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", rec.Start)
	assert.Equal(t, "2025-03-11", rec.End)
	assert.Equal(t, "2025-03-10", rec.Date)
}

func TestNormalize_MissingSummaryGetsPlaceholder(t *testing.T) {
	raw := model.RawEvent{
		Start: model.RawTime{Date: "2025-03-10"},
		End:   model.RawTime{Date: "2025-03-11"},
	}

	rec, err := normalize.Normalize(raw, "Personal", nil)
	require.NoError(t, err)
	assert.Equal(t, model.PlaceholderSummary, rec.Summary)
	assert.Equal(t, "", rec.Description)
}

func TestNormalize_MissingTimeFields(t *testing.T) {
	noStart := model.RawEvent{
		Summary: "broken",
		End:     model.RawTime{Date: "2025-03-11"},
	}
	_, err := normalize.Normalize(noStart, "Work", nil)
	assert.ErrorIs(t, err, normalize.ErrMissingTimeField)

	noEnd := model.RawEvent{
		Summary: "broken",
		Start:   model.RawTime{DateTime: "2025-03-10T08:00:00Z"},
	}
	_, err = normalize.Normalize(noEnd, "Work", nil)
	assert.ErrorIs(t, err, normalize.ErrMissingTimeField)
}

func TestNormalize_ValueRule(t *testing.T) {
	cases := []struct {
		name     string
		calendar string
		summary  string
		want     float64
	}{
		{"rest day in fitness", "Fitness", "Rest day", 0.5},
		{"case-insensitive keyword", "Fitness", "REST + stretching", 0.5},
		{"case-insensitive calendar", "fitness", "rest", 0.5},
		{"regular workout", "Fitness", "Push day", 1},
		{"rest outside fitness", "Work", "rest of the sprint", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := model.RawEvent{
				Summary: tc.summary,
				Start:   model.RawTime{DateTime: "2025-03-10T08:00:00Z"},
				End:     model.RawTime{DateTime: "2025-03-10T09:00:00Z"},
			}
			rec, err := normalize.Normalize(raw, tc.calendar, fitnessRules())
			require.NoError(t, err)
			assert.Equal(t, tc.want, rec.Value)
		})
	}
}
