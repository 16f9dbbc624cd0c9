// Package history persists the accumulated event records as a JSON
// array on disk. The store holds every calendar's records across all
// time; reconciliation operates on per-calendar views of it.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hajkuron/notion-githubchart/internal/identity"
	appLog "github.com/hajkuron/notion-githubchart/internal/log"
	"github.com/hajkuron/notion-githubchart/internal/model"
)

// Store reads and writes the historical record set at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store for the given JSON file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full historical set. A missing file yields an empty
// set. Records persisted by older revisions of the system may lack
// stable/version IDs; those are backfilled via the identity deriver
// before use. A legacy record whose identity cannot be derived is
// skipped and reported in the returned error slice, never fabricated.
func (s *Store) Load() ([]model.EventRecord, []error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.EventRecord{}, nil
		}
		return nil, []error{err}
	}

	var records []model.EventRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, []error{fmt.Errorf("historical store %s: %w", s.path, err)}
	}

	out := make([]model.EventRecord, 0, len(records))
	var errs []error
	for _, rec := range records {
		if rec.ID == "" || rec.VersionID == "" {
			stamped, derr := identity.Stamp(rec)
			if derr != nil {
				errs = append(errs, fmt.Errorf("record %q (%s): %w", rec.Summary, rec.Date, derr))
				appLog.Error("skipping historical record without derivable identity", derr,
					"summary", rec.Summary, "calendar", rec.CalendarName, "date", rec.Date)
				continue
			}
			if rec.ID == "" {
				rec.ID = stamped.ID
			}
			if rec.VersionID == "" {
				rec.VersionID = stamped.VersionID
			}
		}
		out = append(out, rec)
	}
	return out, errs
}

// Save writes the full historical set atomically: temp file in the same
// directory, fsync, then rename, final perms 0600. A failed save leaves
// the prior revision intact.
func (s *Store) Save(records []model.EventRecord) error {
	if records == nil {
		records = []model.EventRecord{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".historical-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
