// Package identity derives the two hash keys that track a calendar
// event across snapshots: the stable ID (same logical event) and the
// version ID (exact observed content).
//
// The hash algorithm (SHA-256 over the UTF-8 pipe-joined fields) and
// the field order are a versioned contract with the historical store:
// changing either invalidates every previously persisted ID and
// requires a full store migration.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hajkuron/notion-githubchart/internal/model"
)

// ErrInvalidRecord is returned when a record cannot yield a stable
// identity because its start stamp is absent or unparseable.
var ErrInvalidRecord = errors.New("invalid record: missing or unparseable start")

// Derive computes (stable ID, version ID) for a record.
//
// The stable ID hashes summary, description, calendar name and the
// date bucket of start, so it survives time shifts within the same day.
// The version ID additionally hashes the exact start and end stamps,
// so any shift in time changes it. Pure function, no side effects.
func Derive(rec model.EventRecord) (stableID, versionID string, err error) {
	if _, perr := model.ParseStamp(rec.Start, time.UTC); perr != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRecord, rec.Start)
	}

	stableID = digest(
		rec.Summary,
		rec.Description,
		rec.CalendarName,
		model.DatePart(rec.Start),
	)
	versionID = digest(
		rec.Summary,
		rec.Description,
		rec.CalendarName,
		rec.Start,
		rec.End,
	)
	return stableID, versionID, nil
}

// Stamp returns a copy of rec with ID and VersionID filled in.
func Stamp(rec model.EventRecord) (model.EventRecord, error) {
	stableID, versionID, err := Derive(rec)
	if err != nil {
		return rec, err
	}
	rec.ID = stableID
	rec.VersionID = versionID
	return rec, nil
}

func digest(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
