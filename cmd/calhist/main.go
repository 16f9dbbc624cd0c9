package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hajkuron/notion-githubchart/internal/config"
	"github.com/hajkuron/notion-githubchart/internal/history"
	appLog "github.com/hajkuron/notion-githubchart/internal/log"
	"github.com/hajkuron/notion-githubchart/internal/pipeline"
	"github.com/hajkuron/notion-githubchart/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	migrate    bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("calhist starting",
		"config_path", flags.configPath,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"calendars", len(conf.Calendars),
		"exempt", len(conf.ExemptCalendars),
		"history_path", conf.HistoryPath,
		"once", flags.once,
	)

	if flags.migrate {
		os.Exit(runMigration(conf))
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	p, err := pipeline.New(conf)
	if err != nil {
		appLog.Error("failed to build pipeline", err)
		os.Exit(1)
	}
	defer p.Close()

	if flags.once {
		if _, err := p.Run(ctx); err != nil {
			appLog.Error("snapshot run failed", err)
			os.Exit(1)
		}
		return
	}

	server := web.NewServer(conf)
	if conf.Listen != "" {
		go func() {
			appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
			if err := http.ListenAndServe(conf.Listen, server.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("HTTP server stopped", err)
			}
		}()
	}

	run := func() {
		sum, err := p.Run(ctx)
		if err != nil {
			appLog.Error("snapshot run failed", err)
		}
		if sum != nil {
			server.SetSummary(sum)
		}
	}

	// First snapshot immediately, then on the cron schedule.
	run()

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, run); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()

	<-ctx.Done()
	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		appLog.Info("shutdown timed out waiting for running job")
	}
	appLog.Info("calhist exiting")
}

// runMigration rebuilds the historical store under the current identity
// scheme and exits. Used once when upgrading a store written before the
// dual-hash IDs existed.
func runMigration(conf *config.Config) int {
	store := history.NewStore(conf.HistoryPath)
	records, loadErrs := store.Load()
	if records == nil {
		appLog.Error("failed to load historical store", loadErrs[0], "path", conf.HistoryPath)
		return 1
	}
	for _, err := range loadErrs {
		appLog.Error("load warning", err)
	}

	migrated, errs := history.Migrate(records)
	for _, err := range errs {
		appLog.Error("migrate warning", err)
	}
	if err := store.Save(migrated); err != nil {
		appLog.Error("failed to save migrated store", err, "path", conf.HistoryPath)
		return 1
	}
	appLog.Info("historical store migrated",
		"path", conf.HistoryPath,
		"records_in", len(records),
		"records_out", len(migrated),
		"skipped", len(errs),
	)
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one snapshot+reconcile cycle and exit")
	flag.BoolVar(&cfg.migrate, "migrate", false, "Rebuild identities in the historical store and exit")

	flag.Parse()

	return cfg
}
