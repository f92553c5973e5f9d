package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natankaway/arenazap/internal/alerts"
	"github.com/natankaway/arenazap/internal/bus"
	"github.com/natankaway/arenazap/internal/cache"
	"github.com/natankaway/arenazap/internal/channels/whatsapp"
	"github.com/natankaway/arenazap/internal/config"
	"github.com/natankaway/arenazap/internal/delivery"
	"github.com/natankaway/arenazap/internal/handoff"
	"github.com/natankaway/arenazap/internal/identity"
	"github.com/natankaway/arenazap/internal/router"
	"github.com/natankaway/arenazap/internal/scheduler"
	"github.com/natankaway/arenazap/internal/sessions"
	"github.com/natankaway/arenazap/internal/store"
	storedb "github.com/natankaway/arenazap/internal/store/db"
)

const sweepEvery = 5 * time.Minute

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Storage. Managed mode runs on Postgres (schema via `arenazap migrate up`),
	// standalone mode on a local sqlite file, memory as last resort.
	stores, durable := openStorage(ctx, cfg)

	msgBus := bus.NewMessageBus()

	channel, err := whatsapp.New(cfg.Bridge, msgBus)
	if err != nil {
		slog.Error("failed to create whatsapp channel", "error", err)
		os.Exit(1)
	}

	notifier := alerts.NewTelegram(cfg.Alerts)
	channel.OnDisconnect(func(reason string) {
		notifier.Notify(context.Background(), "ArenaZap: conexão com o WhatsApp caiu ("+reason+")")
	})

	handoffs := handoff.New(durable, cfg.Handoff.TTL())
	resolver := identity.New(handoffs, cfg.Identity)
	sessionMgr := sessions.NewManager(durable, cfg.Sessions.TTL())

	rtr := router.New(msgBus, resolver, handoffs, sessionMgr, stores.Bookings, cfg.Handoff.ResumeKeyword)

	engine := delivery.New(channel, stores.Deliveries, cfg.Delivery)

	handoffs.StartSweeper(ctx, sweepEvery)
	sessionMgr.StartSweeper(ctx, sweepEvery)
	resolver.StartSweeper(ctx)

	if err := channel.Start(ctx); err != nil {
		slog.Error("failed to start whatsapp channel", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rtr.Run(gctx)
		return nil
	})
	if cfg.Scheduler.IsEnabled() {
		sched := scheduler.New(stores, engine, notifier, cfg.Scheduler)
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	} else {
		slog.Info("scheduler disabled")
	}

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	slog.Info("arenazap gateway started",
		"version", Version,
		"mode", mode,
		"bridge_url", cfg.Bridge.URL,
		"scheduler", cfg.Scheduler.IsEnabled(),
	)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	if err := channel.Stop(context.Background()); err != nil {
		slog.Warn("whatsapp channel stop failed", "error", err)
	}
	cancel()
	_ = g.Wait()
	slog.Info("arenazap gateway stopped")
}

// openStorage builds the store container and the durable cache backend for
// the configured database mode. Any database problem degrades to memory so
// the gateway still answers conversations.
func openStorage(ctx context.Context, cfg *config.Config) (*store.Stores, cache.Cache) {
	var (
		dialect string
		dsn     string
	)
	if cfg.Database.Mode == "managed" {
		dialect, dsn = "postgres", cfg.Database.PostgresDSN
		if dsn == "" {
			slog.Error("managed mode requires ARENAZAP_POSTGRES_DSN")
			os.Exit(1)
		}
	} else {
		dialect, dsn = "sqlite", cfg.Database.SQLitePath
	}

	handle, err := storedb.Open(dialect, dsn)
	if err != nil {
		slog.Warn("database unavailable, falling back to memory stores",
			"dialect", dialect, "error", err)
		return store.NewMemoryStores().Stores(), cache.NewMemory()
	}

	conn := storedb.New(handle, dialect)
	if !cfg.IsManagedMode() {
		if err := conn.EnsureSchema(ctx); err != nil {
			slog.Error("sqlite schema setup failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("database connected", "dialect", dialect)
	return conn.Stores(), cache.NewDB(handle, dialect)
}
