// Package export writes the downstream artifacts of a snapshot run:
// per-calendar chart data for the activity front-end and a prepared
// tabular view of the full history for the external events table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hajkuron/notion-githubchart/internal/model"
)

// ChartRow is one entry of a per-calendar chart file. Field order is
// the canonical export order consumed by the chart front-end.
type ChartRow struct {
	Date        string  `json:"date"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Value       float64 `json:"value"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	Calendar    string  `json:"calendar"`
}

// WriteChartData writes the normalized current batch of one calendar to
// dir/chart-data-<calendar>.json and returns the file path.
func WriteChartData(dir, calendarName string, batch []model.EventRecord) (string, error) {
	rows := make([]ChartRow, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, ChartRow{
			Date:        rec.Date,
			Start:       rec.Start,
			End:         rec.End,
			Value:       rec.Value,
			Summary:     rec.Summary,
			Description: rec.Description,
			Calendar:    rec.CalendarName,
		})
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "chart-data-"+sanitizeFilename(calendarName)+".json")
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o600)
}

// PreparedRecord is one row of the prepared tabular view: the durable
// record shape plus the event duration in minutes.
type PreparedRecord struct {
	model.EventRecord
	Duration float64 `json:"duration"`
}

// Prepare shapes the full historical set for the external events table:
// fills a default value of 1 on legacy rows, computes duration in
// minutes from the start/end stamps (0 when a stamp cannot be parsed)
// and collapses duplicate IDs keeping the first occurrence.
func Prepare(records []model.EventRecord, loc *time.Location) []PreparedRecord {
	out := make([]PreparedRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}

		if rec.Value == 0 {
			rec.Value = 1
		}
		out = append(out, PreparedRecord{
			EventRecord: rec,
			Duration:    durationMinutes(rec, loc),
		})
	}
	return out
}

// WritePrepared writes the prepared view as both JSON (for the upsert
// sink) and CSV (for inspection) under dir.
func WritePrepared(dir string, prepared []PreparedRecord) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(prepared, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "prepared_data.json"), data, 0o600); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "prepared_data.csv"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"id", "version_id", "date", "start", "end", "value",
		"summary", "description", "calendar_name", "status",
		"new_date", "new_start", "new_end", "duration",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, p := range prepared {
		row := []string{
			p.ID, p.VersionID, p.Date, p.Start, p.End,
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			p.Summary, p.Description, p.CalendarName, string(p.Status),
			p.NewDate, p.NewStart, p.NewEnd,
			strconv.FormatFloat(p.Duration, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func durationMinutes(rec model.EventRecord, loc *time.Location) float64 {
	start, err := model.ParseStamp(rec.Start, loc)
	if err != nil {
		return 0
	}
	end, err := model.ParseStamp(rec.End, loc)
	if err != nil {
		return 0
	}
	return end.Sub(start).Minutes()
}

// sanitizeFilename mirrors the chart consumer's naming scheme: spaces
// become underscores, colons are dropped, '@' becomes an underscore.
func sanitizeFilename(name string) string {
	r := strings.NewReplacer(" ", "_", ":", "", "@", "_")
	s := r.Replace(name)
	if s == "" {
		return "calendar"
	}
	return s
}
