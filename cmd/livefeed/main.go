package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livefeed/internal/archive"
	"github.com/rickgao/livefeed/internal/collector"
	"github.com/rickgao/livefeed/internal/config"
	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/database"
	"github.com/rickgao/livefeed/internal/dispatch"
	"github.com/rickgao/livefeed/internal/events"
	"github.com/rickgao/livefeed/internal/feeds"
	"github.com/rickgao/livefeed/internal/metrics"
	"github.com/rickgao/livefeed/internal/presence"
	"github.com/rickgao/livefeed/internal/version"
)

// Feed names with built-in handlers.
const (
	feedComments = "comments"
	feedUser     = "user"
)

func main() {
	configPath := flag.String("config", "configs/livefeed.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting livefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feeds", len(cfg.Feeds),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("livefeed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("livefeed stopped")
}

func run(cfg *config.LivefeedConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	metrics.Register(prometheus.DefaultRegisterer)

	// Analytics
	tracker, closeTracker := newTracker(cfg.Events, logger)
	defer closeTracker()

	queue := events.NewQueue(tracker, logger,
		events.WithSampler(events.NewSampler(cfg.Events.Sampling)),
	)

	// Archive
	var (
		pool   *pgxpool.Pool
		writer *archive.Writer
	)
	if cfg.Database.Archive.Enabled() {
		logger.Info("connecting to archive database",
			"host", cfg.Database.Archive.Host,
			"port", cfg.Database.Archive.Port,
			"database", cfg.Database.Archive.Name,
		)
		p, err := database.ConnectArchive(ctx, cfg.Database.Archive)
		if err != nil {
			return fmt.Errorf("archive database: %w", err)
		}
		defer p.Close()
		pool = p

		writer = archive.NewWriter(archive.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, archive.NewBuffer(cfg.Archive.BufferSize), pool, logger)
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start archive writer: %w", err)
		}
		logger.Info("archive database connected")
	}

	// Presence
	var store *presence.RedisStore
	if cfg.Presence.RedisAddr != "" {
		store = presence.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Presence.RedisAddr,
			Password: cfg.Presence.RedisPassword,
			DB:       cfg.Presence.RedisDB,
		}))
		defer store.Close()
	}

	// Feeds
	sink := feeds.NewLogSink(logger)
	var (
		runners   []*feedRunner
		electors  = make(map[string]*presence.Elector)
		refreshes []*feeds.Refresh
	)
	for _, fc := range cfg.Feeds {
		d := dispatch.New(logger.With("feed", fc.Name))
		r := newFeedRunner(connectorConfig(fc), d, logger)

		refresh := feeds.NewRefresh(feeds.DefaultRefreshWindow, r.Restart, logger)
		refreshes = append(refreshes, refresh)
		if err := registerHandlers(fc.Name, d, cfg.Page, sink, queue, refresh, writer, logger); err != nil {
			return fmt.Errorf("feed %s: %w", fc.Name, err)
		}

		runners = append(runners, r)
		if fc.PerUser {
			pcfg := presence.DefaultConfig(presenceKey(fc.Name, cfg.Page), cfg.Instance.ID)
			pcfg.WriteInterval = cfg.Presence.WriteInterval
			pcfg.WatchInterval = cfg.Presence.WatchInterval
			pcfg.StaleAfter = cfg.Presence.StaleAfter
			electors[fc.Name] = presence.NewElector(pcfg, store, func() presence.Feed { return r }, logger)
		}
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg.Metrics.Path, runners, electors, pool, store, queue),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// The page context is known from config, so the queue is ready now.
	queue.Init(ctx, pageContext(cfg.Page))
	queue.Track("page_events", "livefeed_start", events.Payload{"instance_id": cfg.Instance.ID},
		events.Options{}).Send(ctx, nil)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		if el, ok := electors[r.cfg.Name]; ok {
			g.Go(func() error {
				if err := el.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("presence %s: %w", r.cfg.Name, err)
				}
				return nil
			})
			continue
		}
		if err := r.Start(gctx); err != nil {
			return fmt.Errorf("start feed %s: %w", r.cfg.Name, err)
		}
	}

	logger.Info("livefeed running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-gctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var stop errgroup.Group
	for _, r := range runners {
		stop.Go(r.Stop)
	}
	for _, rf := range refreshes {
		rf.Stop()
	}
	runErr := g.Wait()
	if err := stop.Wait(); err != nil {
		logger.Warn("feed stop failed", "error", err)
	}

	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("archive final flush failed", "error", err)
		}
	}

	healthServer.Shutdown(shutdownCtx)
	return runErr
}

// newTracker picks the analytics sink: the signed HTTP collector, a Kafka
// topic, or none.
func newTracker(cfg config.EventsConfig, logger *slog.Logger) (events.Tracker, func()) {
	switch {
	case cfg.CollectorURL != "":
		c := collector.NewClient(collector.Config{
			URL:     cfg.CollectorURL,
			Key:     cfg.CollectorKey,
			Secret:  cfg.CollectorSecret,
			Source:  cfg.Source,
			Timeout: cfg.Timeout,
		}, collector.WithLogger(logger))
		return c, c.Wait
	case len(cfg.KafkaBrokers) > 0:
		k := collector.NewKafkaTracker(collector.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			Source:       cfg.Source,
			WriteTimeout: cfg.Timeout,
		}, logger)
		return k, func() {
			if err := k.Close(); err != nil {
				logger.Warn("failed to close kafka writer", "error", err)
			}
		}
	default:
		logger.Info("no analytics collector configured")
		return nil, func() {}
	}
}

// registerHandlers wires the handlers of one feed into its dispatcher.
func registerHandlers(
	name string,
	d *dispatch.Dispatcher,
	page config.PageConfig,
	sink *feeds.LogSink,
	queue *events.Queue,
	refresh *feeds.Refresh,
	writer *archive.Writer,
	logger *slog.Logger,
) error {
	if err := refresh.Register(d); err != nil {
		return err
	}
	if writer != nil {
		if err := d.On(dispatch.CategoryMessage, writer.HandlerFor(name)); err != nil {
			return err
		}
	}

	switch name {
	case feedComments:
		return feeds.NewComments(feeds.CommentsConfig{
			UserID:     page.UserID,
			IsPostsMod: page.IsModerator,
			LinkSort:   page.LinkSort,
		}, sink, logger).Register(d)
	case feedUser:
		return feeds.NewInbox(feeds.InboxConfig{
			LiveOrangeredsPref: page.LiveOrangereds,
			PrefEmailMessages:  page.EmailMessages,
		}, sink, queue, logger).Register(d)
	}
	return nil
}

func connectorConfig(fc config.FeedConfig) connection.ConnectorConfig {
	cfg := connection.DefaultConnectorConfig()
	cfg.Name = fc.Name
	cfg.URL = fc.URL
	cfg.StatsURL = fc.StatsURL
	cfg.BackoffBase = fc.BackoffBase
	cfg.MaxRetries = fc.MaxRetries
	cfg.JitterAmount = fc.JitterAmount
	cfg.Client.PingTimeout = fc.Liveness()
	cfg.Client.WriteTimeout = fc.WriteTimeout
	cfg.Client.BufferSize = fc.BufferSize
	return cfg
}

func presenceKey(feed string, page config.PageConfig) string {
	id := page.UserID
	if id == "" {
		id = page.LoID
	}
	return "livefeed:" + feed + ":" + id
}

func pageContext(p config.PageConfig) events.PageContext {
	return events.PageContext{
		UserID:            p.UserID,
		UserName:          p.UserName,
		Loid:              p.LoID,
		LoidCreated:       p.LoIDCreated,
		Language:          p.Language,
		Referrer:          p.Referrer,
		DoNotTrack:        p.DoNotTrack,
		CurLink:           p.CurLink,
		CurSite:           p.CurSite,
		PostSite:          p.PostSite,
		PageType:          p.PageType,
		CurListing:        p.CurListing,
		ExpandoPreference: p.ExpandoPreference,
		PrefNoProfanity:   p.NoProfanity,
		PrefBeta:          p.Beta,
	}
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(
	metricsPath string,
	runners []*feedRunner,
	electors map[string]*presence.Elector,
	pool *pgxpool.Pool,
	store *presence.RedisStore,
	queue *events.Queue,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["archive"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["archive"] = "connected"
			}
		}

		if store != nil {
			if err := store.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["presence"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["presence"] = "connected"
			}
		}

		// Per-user feeds are only open on the owning instance.
		open, required := 0, 0
		for _, fr := range runners {
			isOpen := fr.Status().State == connection.StateOpen.String()
			if isOpen {
				open++
			}
			if _, elected := electors[fr.cfg.Name]; !elected {
				required++
				if !isOpen && health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}
		health.Components["feeds"] = map[string]int{
			"configured": len(runners),
			"required":   required,
			"open":       open,
		}
		health.Components["events"] = map[string]any{
			"initialized": queue.Initialized(),
			"queued":      queue.Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		statuses := make([]feedStatus, 0, len(runners))
		for _, fr := range runners {
			st := fr.Status()
			if el, ok := electors[fr.cfg.Name]; ok {
				st.Role = el.Role().String()
			}
			statuses = append(statuses, st)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count": len(statuses),
			"feeds": statuses,
		})
	})

	return mux
}
