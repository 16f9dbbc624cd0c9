package ics

import (
	"context"
	"time"

	appLog "github.com/hajkuron/notion-githubchart/internal/log"
	"github.com/hajkuron/notion-githubchart/internal/model"
)

// Window is the snapshot time window: only occurrences intersecting
// [Start, End] enter a snapshot.
type Window struct {
	Start time.Time
	End   time.Time
}

// Snapshot fetches all sources and returns the expanded raw events
// grouped by calendar name, ready for normalization. Per-source
// failures are collected; a failing feed simply contributes no batch,
// so its partition is left untouched by the caller.
func (f *Fetcher) Snapshot(ctx context.Context, sources []Source, window Window, loc *time.Location) (map[string][]model.RawEvent, []error) {
	results, errs := f.FetchAll(ctx, sources)

	batches := make(map[string][]model.RawEvent, len(results))
	for _, res := range results {
		parsed, err := ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		occs, err := ExpandOccurrences(parsed, ExpandConfig{
			Location:   loc,
			RangeStart: window.Start,
			RangeEnd:   window.End,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		raws := make([]model.RawEvent, 0, len(occs))
		for _, occ := range occs {
			raws = append(raws, occurrenceToRaw(occ))
		}
		batches[res.Source.Name] = raws
		appLog.Info("snapshot batch ready", "calendar", res.Source.Name, "events", len(raws), "from_cache", res.FromCache)
	}
	return batches, errs
}

// occurrenceToRaw renders an occurrence into the provider event shape:
// a dateTime stamp for timed events, a bare date for all-day ones.
func occurrenceToRaw(occ Occurrence) model.RawEvent {
	raw := model.RawEvent{
		Summary:     occ.Summary,
		Description: occ.Description,
	}
	if occ.AllDay {
		raw.Start = model.RawTime{Date: model.FormatStamp(occ.Start, true)}
		raw.End = model.RawTime{Date: model.FormatStamp(occ.End, true)}
	} else {
		raw.Start = model.RawTime{DateTime: model.FormatStamp(occ.Start, false)}
		raw.End = model.RawTime{DateTime: model.FormatStamp(occ.End, false)}
	}
	return raw
}
