package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/speedwagon-io/hevt/internal/channel"
	"github.com/speedwagon-io/hevt/internal/collector"
	"github.com/speedwagon-io/hevt/internal/command"
	"github.com/speedwagon-io/hevt/internal/config"
	"github.com/speedwagon-io/hevt/internal/display"
	"github.com/speedwagon-io/hevt/internal/frame"
	"github.com/speedwagon-io/hevt/internal/health"
	"github.com/speedwagon-io/hevt/internal/history"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/metrics"
	"github.com/speedwagon-io/hevt/internal/notifier"
	"github.com/speedwagon-io/hevt/internal/sender"
	"github.com/speedwagon-io/hevt/internal/settings"
	"github.com/speedwagon-io/hevt/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log notifications instead of pushing them")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	dry := *dryRun || cfg.Notify.DryRun

	log.Info("starting hevt",
		slog.String("env", cfg.Env),
		slog.String("device", cfg.Network.DeviceAddr()),
		slog.Bool("dry_run", dry),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := settings.NewFileStore(log, cfg.Notify.SettingsPath, os.Getenv("HEVT_ACCESS_TOKEN"))
	if err != nil {
		log.Error("failed to load notification settings", sl.Err(err))
		os.Exit(1)
	}

	// Use LogSender for dry-run mode, LineSender otherwise
	var pusher sender.Pusher
	if dry {
		pusher = sender.NewLogSender(log)
		log.Info("dry-run mode: notifications will be logged instead of pushed")
	} else {
		pusher = sender.NewLineSender(log, &cfg.Notify)
	}

	var journal *history.Journal
	if cfg.History.Enabled {
		journal, err = history.NewSQLiteJournal(log, cfg.History.Path)
		if err != nil {
			log.Error("failed to open push history", sl.Err(err))
			os.Exit(1)
		}
		log.Info("push history enabled", slog.String("path", cfg.History.Path))
	}

	dispatcher := notifier.NewDispatcher(log, pusher, notifier.DispatcherOptions{
		QueueSize:     cfg.Notify.QueueSize,
		Workers:       cfg.Notify.Workers,
		RatePerMinute: cfg.Notify.RatePerMinute,
		Burst:         cfg.Notify.Burst,
		Journal:       journalOrNil(journal),
		Metrics:       m,
	})
	dispatcher.Start()

	alarms := notifier.New(log, store, dispatcher, notifier.Options{Metrics: m})

	rng := display.Range{Min: cfg.Frame.DisplayMin, Max: cfg.Frame.DisplayMax}
	state := display.NewState()
	hub := display.NewHub(log, rng)

	pair := channel.NewPair(log)
	deps := collector.Deps{
		Pair:     pair,
		Frames:   frame.NewStore(cfg.Frame.DiffThreshold),
		Sink:     display.Multi{state, hub},
		Observer: alarms,
		Metrics:  m,
	}
	if journal != nil {
		deps.Janitor = journal
	}
	manager := collector.NewManager(log, cfg, deps)

	commander := command.NewCommander(log, pair, manager.DeviceAddr)

	api := web.NewAPI(log, web.Deps{
		Network:  manager,
		Commands: commander,
		Settings: store,
		Alarms:   alarms,
		History:  historyOrNil(journal),
		State:    state,
		Stream:   hub,
		Range:    rng,
	})

	httpServer := health.NewServer(log, cfg.HTTP.Address, reg, manager.Ready)
	httpServer.AddChecker(health.NewChannelHealthChecker(manager.Ready))
	if journal != nil {
		httpServer.AddChecker(health.NewHistoryHealthChecker(journal.Ping))
		httpServer.AddChecker(health.NewPushHealthChecker(time.Hour, journal.FailuresSince))
	}
	httpServer.Mount("/api", api.Routes())

	if err := httpServer.Start(); err != nil {
		log.Error("failed to start http server", sl.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		// Stay up so the network can be fixed through the API.
		log.Error("failed to start receive loops", sl.Err(err))
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	manager.Stop()
	hub.Close()

	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("notification queue not drained", sl.Err(err))
	}

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop http server", sl.Err(err))
	}

	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Error("failed to close push history", sl.Err(err))
		}
	}

	log.Info("hevt stopped")
}

// journalOrNil keeps a nil *history.Journal from becoming a non-nil interface.
func journalOrNil(j *history.Journal) notifier.Journal {
	if j == nil {
		return nil
	}
	return j
}

func historyOrNil(j *history.Journal) web.History {
	if j == nil {
		return nil
	}
	return j
}
