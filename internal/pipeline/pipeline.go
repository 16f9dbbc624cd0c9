// Package pipeline orchestrates one snapshot run: fetch the calendar
// feeds, normalize and identity-stamp the events, reconcile each
// calendar partition against the historical store, merge the results
// back, and hand the outcome to the export and upsert collaborators.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hajkuron/notion-githubchart/internal/config"
	"github.com/hajkuron/notion-githubchart/internal/database"
	"github.com/hajkuron/notion-githubchart/internal/export"
	"github.com/hajkuron/notion-githubchart/internal/history"
	"github.com/hajkuron/notion-githubchart/internal/ics"
	"github.com/hajkuron/notion-githubchart/internal/identity"
	appLog "github.com/hajkuron/notion-githubchart/internal/log"
	"github.com/hajkuron/notion-githubchart/internal/model"
	"github.com/hajkuron/notion-githubchart/internal/normalize"
	"github.com/hajkuron/notion-githubchart/internal/reconcile"
)

// CalendarSummary reports the outcome of reconciling one calendar.
type CalendarSummary struct {
	Calendar  string `json:"calendar"`
	Fetched   int    `json:"fetched"`
	Skipped   int    `json:"skipped"` // raw events dropped during normalization
	New       int    `json:"new"`
	Modified  int    `json:"modified"`
	Unchanged int    `json:"unchanged"`
	Deleted   int    `json:"deleted"`
	Aborted   bool   `json:"aborted"`
	Error     string `json:"error,omitempty"`
}

// RunSummary reports the outcome of one snapshot run.
type RunSummary struct {
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Calendars    []CalendarSummary `json:"calendars"`
	TotalRecords int               `json:"total_records"`
	Errors       []string          `json:"errors,omitempty"`
}

// Pipeline wires the collaborators of a snapshot run together. One
// Pipeline owns the historical store; runs are serialized internally so
// two overlapping cron ticks can never interleave partition merges.
type Pipeline struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *ics.Fetcher
	store   *history.Store
	sink    *database.Sink // nil when upsert is disabled
	rules   []normalize.ValueRule
	policy  reconcile.Policy
	exclude map[string]struct{}

	mu sync.Mutex
}

// New builds a Pipeline from configuration. The database sink is only
// opened when a DSN is configured.
func New(cfg *config.Config) (*Pipeline, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	rules := make([]normalize.ValueRule, 0, len(cfg.ValueRules))
	for _, r := range cfg.ValueRules {
		rules = append(rules, normalize.ValueRule{
			Calendar: r.Calendar,
			Keyword:  r.Keyword,
			Value:    r.Value,
		})
	}

	exclude := make(map[string]struct{}, len(cfg.ExcludeCalendars))
	for _, name := range cfg.ExcludeCalendars {
		exclude[name] = struct{}{}
	}

	p := &Pipeline{
		cfg:     cfg,
		loc:     loc,
		fetcher: ics.NewFetcher(cfg.CacheDir),
		store:   history.NewStore(cfg.HistoryPath),
		rules:   rules,
		policy:  reconcile.NewPolicy(cfg.ExemptCalendars...),
		exclude: exclude,
	}

	if cfg.Database.DSN != "" {
		sink, err := database.NewSink(cfg.Database.DSN, cfg.Database.Table)
		if err != nil {
			return nil, err
		}
		p.sink = sink
	}

	return p, nil
}

// Close releases pipeline resources.
func (p *Pipeline) Close() error {
	if p.sink != nil {
		return p.sink.Close()
	}
	return nil
}

// Window returns the snapshot window: from the configured history start
// date until now plus the future horizon.
func (p *Pipeline) Window(now time.Time) (ics.Window, error) {
	start, err := model.ParseStamp(p.cfg.HistoryStart, p.loc)
	if err != nil {
		return ics.Window{}, fmt.Errorf("history_start %q: %w", p.cfg.HistoryStart, err)
	}
	return ics.Window{
		Start: start,
		End:   now.In(p.loc).AddDate(0, 0, p.cfg.HorizonDays),
	}, nil
}

// Run performs one full snapshot run: fetch, reconcile, persist,
// export, upsert.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	window, err := p.Window(time.Now())
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(p.cfg.Calendars))
	for _, cal := range p.cfg.Calendars {
		if _, skip := p.exclude[cal.Name]; skip {
			appLog.Info("skipping excluded calendar", "calendar", cal.Name)
			continue
		}
		sources = append(sources, ics.Source{ID: cal.ID, Name: cal.Name, URL: cal.URL})
	}

	batches, fetchErrs := p.fetcher.Snapshot(ctx, sources, window, p.loc)

	summary, err := p.RunBatches(ctx, batches)
	if summary != nil {
		for _, ferr := range fetchErrs {
			summary.Errors = append(summary.Errors, ferr.Error())
		}
	}
	return summary, err
}

// RunBatches reconciles pre-fetched raw event batches (keyed by
// calendar name) against the historical store and runs the downstream
// exports. Split out from Run so snapshot processing can be driven
// without network access.
func (p *Pipeline) RunBatches(ctx context.Context, batches map[string][]model.RawEvent) (*RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary := &RunSummary{StartedAt: time.Now()}
	defer func() { summary.FinishedAt = time.Now() }()

	full, loadErrs := p.store.Load()
	if full == nil {
		// Unreadable store: abort the whole run rather than regenerate
		// history from scratch.
		for _, lerr := range loadErrs {
			summary.Errors = append(summary.Errors, lerr.Error())
		}
		return summary, fmt.Errorf("load historical store: %w", loadErrs[0])
	}
	for _, lerr := range loadErrs {
		summary.Errors = append(summary.Errors, lerr.Error())
	}

	names := make([]string, 0, len(batches))
	for name := range batches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cs := p.reconcileCalendar(name, batches[name], &full)
		summary.Calendars = append(summary.Calendars, cs)
	}

	if err := p.store.Save(full); err != nil {
		return summary, fmt.Errorf("save historical store: %w", err)
	}
	summary.TotalRecords = len(full)

	prepared := export.Prepare(full, p.loc)
	if err := export.WritePrepared(p.cfg.ExportDir, prepared); err != nil {
		return summary, fmt.Errorf("write prepared export: %w", err)
	}

	if p.sink != nil {
		if err := p.sink.Upsert(ctx, prepared); err != nil {
			return summary, fmt.Errorf("upsert prepared records: %w", err)
		}
	}

	appLog.Info("snapshot run finished",
		"calendars", len(summary.Calendars),
		"total_records", summary.TotalRecords,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

// reconcileCalendar processes one calendar partition. On reconciliation
// failure the partition keeps its prior revision and the failure is
// reported on the summary; other calendars are unaffected.
func (p *Pipeline) reconcileCalendar(name string, raws []model.RawEvent, full *[]model.EventRecord) CalendarSummary {
	cs := CalendarSummary{Calendar: name, Fetched: len(raws)}

	batch := make([]model.EventRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := normalize.Normalize(raw, name, p.rules)
		if err != nil {
			cs.Skipped++
			appLog.Error("skipping raw event", err, "calendar", name, "summary", raw.Summary)
			continue
		}
		rec, err = identity.Stamp(rec)
		if err != nil {
			cs.Skipped++
			appLog.Error("skipping event without derivable identity", err, "calendar", name, "summary", rec.Summary)
			continue
		}
		batch = append(batch, rec)
	}

	partition := reconcile.Partition(*full, name)
	updated, err := reconcile.Reconcile(batch, partition, p.policy)
	if err != nil {
		cs.Aborted = true
		cs.Error = err.Error()
		appLog.Error("partition reconciliation aborted; keeping prior revision", err, "calendar", name)
		return cs
	}

	merged, err := reconcile.MergePartition(*full, name, updated)
	if err != nil {
		cs.Aborted = true
		cs.Error = err.Error()
		appLog.Error("partition merge aborted; keeping prior revision", err, "calendar", name)
		return cs
	}
	*full = merged

	for _, rec := range updated {
		switch rec.Status {
		case model.StatusNew:
			cs.New++
		case model.StatusModified:
			cs.Modified++
		case model.StatusUnchanged:
			cs.Unchanged++
		case model.StatusDeleted:
			cs.Deleted++
		}
	}

	if path, err := export.WriteChartData(p.cfg.ExportDir, name, batch); err != nil {
		cs.Error = err.Error()
		appLog.Error("chart export failed", err, "calendar", name)
	} else {
		appLog.Debug("chart data written", "calendar", name, "path", path)
	}

	appLog.Info("calendar reconciled",
		"calendar", name,
		"fetched", cs.Fetched,
		"new", cs.New,
		"modified", cs.Modified,
		"unchanged", cs.Unchanged,
		"deleted", cs.Deleted,
	)
	return cs
}
