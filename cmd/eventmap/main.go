package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // feed TZIDs resolve on hosts without a zoneinfo database

	"github.com/robfig/cron/v3"

	"eventmap/internal/capture"
	"eventmap/internal/config"
	"eventmap/internal/ics"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
	"eventmap/internal/store"
	"eventmap/internal/view"
	"eventmap/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	snapshot   bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("eventmap starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_path", conf.DataPath,
		"extra_events", len(conf.ExtraEvents),
		"feeds", len(conf.Feeds),
		"view_idle_minutes", conf.ViewIdleMinutes,
		"snapshot_cron", conf.Snapshot.Cron,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	events, err := buildStore(ctx, conf)
	if err != nil {
		appLog.Error("failed to build event store", err)
		os.Exit(1)
	}

	views := view.NewRegistry(events, view.Options{
		DefaultCenter: conf.DefaultCenter,
		Zoom:          conf.LocateZoom,
	})
	defer views.UnmountAll()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, events, views).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if flags.snapshot {
		// Give the listener a moment before Chromium connects.
		time.Sleep(200 * time.Millisecond)
		if err := runSnapshot(ctx, conf); err != nil {
			appLog.Error("snapshot failed", err)
			shutdown(srv)
			os.Exit(1)
		}
		shutdown(srv)
		return
	}

	sched, err := startScheduler(ctx, conf, views)
	if err != nil {
		appLog.Error("failed to start scheduler", err)
		shutdown(srv)
		os.Exit(1)
	}
	defer func() { <-sched.Stop().Done() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			appLog.Error("HTTP server failed", err)
		}
	}

	shutdown(srv)
	appLog.Info("eventmap exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./eventmap.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture one PNG preview of the map and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()
	return cfg
}

// buildStore assembles the event sequence once: bundled (or data_path)
// events, then the supplementary records, then inline config events, then
// geo-tagged feed events.
func buildStore(ctx context.Context, conf *config.Config) (*store.Store, error) {
	base, err := store.Load(conf.DataPath)
	if err != nil {
		return nil, err
	}

	extra := store.Supplementary()
	extra = append(extra, conf.ExtraEvents...)
	extra = append(extra, importFeeds(ctx, conf)...)

	s := store.New(base, extra...)
	appLog.Info("event store ready", "events", s.Len(), "base", len(base), "extra", len(extra))
	return s, nil
}

func importFeeds(ctx context.Context, conf *config.Config) []model.Event {
	if len(conf.Feeds) == 0 {
		return nil
	}
	feeds := make([]ics.Feed, 0, len(conf.Feeds))
	for _, fc := range conf.Feeds {
		if fc.URL == "" {
			continue
		}
		id := fc.ID
		if id == "" {
			id = fc.URL
		}
		feeds = append(feeds, ics.Feed{
			Source:      ics.Source{ID: id, URL: fc.URL},
			HorizonDays: fc.HorizonDays,
		})
	}
	res := ics.Import(ctx, ics.NewFetcher("./cache/ics"), feeds, time.Now())
	if len(res.Errors) > 0 || len(res.TruncatedEvents) > 0 {
		appLog.Warn("feed import incomplete",
			"failed_feeds", len(res.Errors),
			"truncated", strings.Join(res.TruncatedEvents, ","),
		)
	}
	return res.Events
}

// startScheduler registers the idle view sweep and, when configured, the
// periodic snapshot capture.
func startScheduler(ctx context.Context, conf *config.Config, views *view.Registry) (*cron.Cron, error) {
	c := cron.New()

	maxIdle := time.Duration(conf.ViewIdleMinutes) * time.Minute
	if _, err := c.AddFunc(conf.SweepCron, func() {
		views.Sweep(maxIdle)
	}); err != nil {
		return nil, err
	}

	if conf.Snapshot.Cron != "" {
		if _, err := c.AddFunc(conf.Snapshot.Cron, func() {
			if err := runSnapshot(ctx, conf); err != nil {
				appLog.Error("scheduled snapshot failed", err)
			}
		}); err != nil {
			return nil, err
		}
	}

	c.Start()
	appLog.Info("scheduler started", "sweep", conf.SweepCron, "snapshot", conf.Snapshot.Cron)
	return c, nil
}

func runSnapshot(ctx context.Context, conf *config.Config) error {
	opts := capture.Options{
		URL:        localURL(conf.Listen),
		OutputPath: conf.Snapshot.OutputPath,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
	}
	appLog.Info("capturing snapshot", "url", opts.URL, "output", opts.OutputPath)
	return capture.CapturePNG(ctx, opts)
}

// localURL turns a listen address into a URL Chromium can reach.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
}
