// Package reconcile merges a freshly fetched calendar snapshot against
// the persisted history of the same calendar, assigning each record a
// lifecycle status (new, modified, unchanged, deleted).
//
// One Reconcile call handles exactly one calendar partition. It is a
// pure in-memory pass: deterministic, single-threaded, idempotent for
// identical inputs. Partitions are disjoint, so independent calendars
// may be reconciled concurrently as long as the merge back into the
// full historical set stays serialized (see MergePartition).
package reconcile

import (
	"errors"
	"fmt"

	"github.com/hajkuron/notion-githubchart/internal/identity"
	"github.com/hajkuron/notion-githubchart/internal/model"
)

// Reconcile merges the current snapshot batch of one calendar against
// that calendar's historical records and returns the updated set.
//
// Matching is by stable ID; change detection is by version ID. For a
// matched record with a differing fingerprint the new_* shadow fields
// receive the incoming date/start/end and the fingerprint is adopted,
// while the primary date/start/end keep the originally observed time.
// Historical records absent from the batch become deleted; batch
// records absent from history are appended as new. For exempt
// calendars, status is never reclassified: disappearance is a no-op,
// content changes keep the prior status, and unseen records are
// appended silently without the new flag.
//
// Records lacking a stable or version ID (legacy data on either side)
// are backfilled via the identity deriver first; a record whose start
// cannot be parsed aborts the partition with ErrInvalidRecord so the
// caller can keep the prior revision and rerun.
//
// Duplicate stable IDs within the batch collapse last-write-wins;
// within the output, the first occurrence wins.
func Reconcile(current, historical []model.EventRecord, policy Policy) ([]model.EventRecord, error) {
	batch := make([]model.EventRecord, len(current))
	copy(batch, current)
	for i, c := range batch {
		rec, err := backfillIdentity(c)
		if err != nil {
			return nil, fmt.Errorf("current batch record %q: %w", c.Summary, err)
		}
		batch[i] = rec
	}

	// Working pool of unclaimed batch records, keyed by stable ID.
	// Duplicates within one batch are not expected; if present, the
	// later record wins the pool slot.
	pool := make(map[string]model.EventRecord, len(batch))
	for _, c := range batch {
		pool[c.ID] = c
	}
	claimed := make(map[string]struct{})

	out := make([]model.EventRecord, 0, len(historical)+len(batch))
	seen := make(map[string]struct{}, len(historical)+len(batch))
	emit := func(rec model.EventRecord) {
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}

	for _, h := range historical {
		h, err := backfillIdentity(h)
		if err != nil {
			return nil, fmt.Errorf("historical record %q: %w", h.Summary, err)
		}
		if h.Status == "" {
			h.Status = model.StatusUnchanged
		}
		exempt := policy.Contains(h.CalendarName)

		c, ok := pool[h.ID]
		if !ok {
			// Absent from the snapshot. Exempt calendars never report
			// deletion; everything else does.
			if !exempt {
				h.Status = model.StatusDeleted
			}
			emit(h)
			continue
		}
		claimed[h.ID] = struct{}{}

		switch {
		case h.VersionID != c.VersionID && !exempt:
			h.Status = model.StatusModified
			h.NewDate = c.Date
			h.NewStart = c.Start
			h.NewEnd = c.End
			h.VersionID = c.VersionID
		case h.VersionID != c.VersionID && exempt:
			// Content changed on an exempt calendar: keep prior status.
		default:
			if h.Status != model.StatusModified && h.Status != model.StatusDeleted {
				h.Status = model.StatusUnchanged
			}
		}
		emit(h)
	}

	// Unclaimed batch records were never seen before.
	for _, c := range batch {
		if _, ok := claimed[c.ID]; ok {
			continue
		}
		if policy.Contains(c.CalendarName) {
			// Silent insert: no new flag, no shadow fields.
			c.Status = model.StatusUnchanged
		} else {
			c.Status = model.StatusNew
			c.NewDate = c.Date
			c.NewStart = c.Start
			c.NewEnd = c.End
		}
		emit(c)
	}

	return out, nil
}

// backfillIdentity fills missing ID/VersionID via the identity deriver.
// Records that already carry both keys pass through untouched, so IDs
// adopted during reconciliation are never recomputed.
func backfillIdentity(rec model.EventRecord) (model.EventRecord, error) {
	if rec.ID != "" && rec.VersionID != "" {
		return rec, nil
	}
	stableID, versionID, err := identity.Derive(rec)
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		rec.ID = stableID
	}
	if rec.VersionID == "" {
		rec.VersionID = versionID
	}
	return rec, nil
}

// Partition returns the records belonging to one calendar.
func Partition(full []model.EventRecord, calendarName string) []model.EventRecord {
	part := make([]model.EventRecord, 0)
	for _, rec := range full {
		if rec.CalendarName == calendarName {
			part = append(part, rec)
		}
	}
	return part
}

// ErrPartitionMismatch is returned by MergePartition when the updated
// slice carries records for a different calendar than the one being
// merged.
var ErrPartitionMismatch = errors.New("updated records belong to a different partition")

// MergePartition folds one calendar's reconciled records back into the
// full historical set. Records of other calendars pass through in their
// original positions; records of the merged calendar are replaced by
// their updated counterparts in place, and updated records without a
// prior position are appended. The result is a new slice; the input is
// not mutated.
//
// Callers must serialize MergePartition per historical set (or keep
// concurrent merges on disjoint partitions) to avoid lost updates.
func MergePartition(full []model.EventRecord, calendarName string, updated []model.EventRecord) ([]model.EventRecord, error) {
	byID := make(map[string]model.EventRecord, len(updated))
	for _, rec := range updated {
		if rec.CalendarName != calendarName {
			return nil, fmt.Errorf("%w: got %q, merging %q", ErrPartitionMismatch, rec.CalendarName, calendarName)
		}
		byID[rec.ID] = rec
	}

	placed := make(map[string]struct{}, len(updated))
	out := make([]model.EventRecord, 0, len(full)+len(updated))
	for _, rec := range full {
		if rec.CalendarName != calendarName {
			out = append(out, rec)
			continue
		}
		upd, ok := byID[rec.ID]
		if !ok {
			// Dropped by dedup during reconciliation.
			continue
		}
		if _, dup := placed[rec.ID]; dup {
			continue
		}
		placed[rec.ID] = struct{}{}
		out = append(out, upd)
	}
	for _, rec := range updated {
		if _, ok := placed[rec.ID]; ok {
			continue
		}
		placed[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}
