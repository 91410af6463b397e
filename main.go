// Command api is the LivelyChat relay: it receives chat messages from
// platform adapters (QQ over OneBot, Twitch over IRC) or HTTP
// submissions, persists them to MongoDB, and fans them out to websocket
// subscribers, while serving the paginated history API.
//
// Startup order: env + logging, config, telemetry, store, realtime hub,
// relay, platform adapters, HTTP server. Shutdown is graceful on
// SIGINT/SIGTERM: live connections are dropped, adapters closed, the
// HTTP listener drained, and the store disconnected. A second signal
// forces immediate exit.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/LivelyChat/api/config"
	"github.com/LivelyChat/api/platform"
	"github.com/LivelyChat/api/platform/qq"
	"github.com/LivelyChat/api/platform/twitchchat"
	"github.com/LivelyChat/api/realtime"
	"github.com/LivelyChat/api/relay"
	"github.com/LivelyChat/api/server"
	"github.com/LivelyChat/api/store"
	"github.com/LivelyChat/api/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("livelychat-api", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown; a second signal force-exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Warn("force exiting")
		os.Exit(1)
	}()

	db := store.New(cfg.Mongo.URI, cfg.Mongo.Database)
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = db.Connect(connectCtx)
	cancel()
	if err != nil {
		slog.Error("failed to connect to mongodb", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Disconnect(disconnectCtx); err != nil {
			slog.Error("failed to disconnect from mongodb", slog.Any("err", err))
		}
	}()

	hub := realtime.NewHub(cfg)
	orchestrator := relay.New(db, hub)

	adapters := platform.Set{}
	if pc, ok := cfg.Platforms["qq"]; ok {
		adapters["qq"] = qq.New(pc, orchestrator.Receive)
	}
	if pc, ok := cfg.Platforms["twitch"]; ok {
		adapters["twitch"] = twitchchat.New(pc, orchestrator.Receive)
	}
	adapters.StartAll(ctx)

	deps := server.Deps{
		Cfg:   cfg,
		Store: db,
		Relay: orchestrator,
		Hub:   hub,
	}
	if a, ok := adapters["qq"].(*qq.Adapter); ok {
		deps.Groups = a
	}

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx, deps, cfg.HTTPAddr) }()

	<-ctx.Done()
	slog.Info("shutting down")
	hub.CloseAll()
	adapters.CloseAll()
	if err := <-done; err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}
