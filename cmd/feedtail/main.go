// feedtail connects to a live feed and prints every dispatched message.
// Usage: go run ./cmd/feedtail --url wss://ws.example.com/link/abc?h=...
//
// With --config the feed URL and backoff come from the named feed instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/livefeed/internal/config"
	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/dispatch"
)

func main() {
	url := flag.String("url", "", "WebSocket URL to tail")
	configPath := flag.String("config", "", "path to config file")
	feedName := flag.String("feed", "comments", "feed name in the config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	connCfg := connection.DefaultConnectorConfig()
	connCfg.Name = *feedName
	connCfg.URL = *url

	if *configPath != "" {
		cfg, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		fc, ok := findFeed(cfg, *feedName)
		if !ok {
			logger.Error("feed not found in config", "feed", *feedName)
			os.Exit(1)
		}
		connCfg.URL = fc.URL
		connCfg.BackoffBase = fc.BackoffBase
		connCfg.MaxRetries = fc.MaxRetries
		connCfg.JitterAmount = fc.JitterAmount
		connCfg.Client.PingTimeout = fc.Liveness()
	}

	if connCfg.URL == "" {
		logger.Error("a feed URL is required (--url or --config)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	d := dispatch.New(logger)
	d.On(dispatch.CategoryMessage, func(ctx context.Context, msg dispatch.Message) error {
		printMessage(msg, *verbose)
		return nil
	})

	conn := connection.NewConnector(connCfg, logger, connection.WithFrameHandler(d))
	conn.Subscribe(func(n connection.Notification) {
		switch n.Kind {
		case connection.NotifyConnected:
			logger.Info("connected", "url", connCfg.URL)
		case connection.NotifyReconnecting:
			logger.Info("reconnecting", "delay", n.Delay)
		case connection.NotifyDisconnected:
			logger.Error("gave up after maximum retries")
			cancel()
		}
	})

	if err := conn.Start(ctx); err != nil {
		logger.Error("failed to start connector", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := d.Stats()
				logger.Info("stats",
					"state", conn.State(),
					"frames_received", stats.FramesReceived,
					"frames_malformed", stats.FramesMalformed,
					"dispatched", stats.Dispatched,
					"handler_failures", stats.HandlerFailures,
				)
			}
		}
	}()

	logger.Info("tailing feed - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	conn.Stop()
	logger.Info("shutdown complete")
}

func findFeed(cfg *config.LivefeedConfig, name string) (config.FeedConfig, bool) {
	for _, f := range cfg.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return config.FeedConfig{}, false
}

func printMessage(msg dispatch.Message, verbose bool) {
	if verbose {
		var body any
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			body = string(msg.Payload)
		}
		data, _ := json.MarshalIndent(body, "", "  ")
		fmt.Printf("[%s] %s %s\n", msg.ReceivedAt.Format(time.RFC3339), msg.Type, data)
		return
	}
	fmt.Printf("[%s] %s payload=%d bytes\n", msg.ReceivedAt.Format(time.RFC3339), msg.Type, len(msg.Payload))
}
