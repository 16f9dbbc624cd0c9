package history

import (
	"fmt"

	"github.com/hajkuron/notion-githubchart/internal/identity"
	appLog "github.com/hajkuron/notion-githubchart/internal/log"
	"github.com/hajkuron/notion-githubchart/internal/model"
)

// Migrate rebuilds a historical set recorded under an older identity
// scheme: every record gets freshly derived stable/version IDs, an
// empty description becomes "", the new_* shadow fields are seeded from
// the record's own date/start/end, status resets to unchanged, and
// duplicates collapse keeping the first occurrence.
//
// This is a one-shot repair operation (the -migrate flag), not part of
// a regular snapshot run. Records whose identity cannot be derived are
// skipped and reported.
func Migrate(records []model.EventRecord) ([]model.EventRecord, []error) {
	out := make([]model.EventRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	var errs []error

	for _, rec := range records {
		stableID, versionID, err := identity.Derive(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %q (%s): %w", rec.Summary, rec.Date, err))
			appLog.Error("migrate: skipping record without derivable identity", err,
				"summary", rec.Summary, "calendar", rec.CalendarName, "date", rec.Date)
			continue
		}
		rec.ID = stableID
		rec.VersionID = versionID
		rec.NewDate = rec.Date
		rec.NewStart = rec.Start
		rec.NewEnd = rec.End
		rec.Status = model.StatusUnchanged

		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out, errs
}
