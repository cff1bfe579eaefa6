package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"support_bot/internal/config"
	"support_bot/internal/relay"
	"support_bot/internal/scheduler"
	"support_bot/internal/security"
	"support_bot/internal/storage"
	"support_bot/internal/telegram"
	"support_bot/pkg/logger"
	"support_bot/pkg/metrics"
)

func main() {
	// 1. Load .env (optional) and configuration
	_ = godotenv.Load()
	cfg := config.MustLoad()

	// 2. Init structured logger (zap based)
	log := logger.New(cfg.LogLevel)
	defer logger.Sync(log)

	log.Infow("starting support-bot", "version", cfg.Version)

	// 3. Root context with graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Expose Prometheus metrics endpoint
	metricsSrv := metrics.MustServe(cfg.MetricsAddr, log)

	// 5. Storage: sqlite by default, postgres when DATABASE_URL is set
	var (
		store storage.Store
		err   error
	)
	switch cfg.DBDriver {
	case "postgres":
		store, err = storage.NewPostgres(cfg.DatabaseURL)
	default:
		store, err = storage.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		log.Fatalw("init storage failed", "driver", cfg.DBDriver, "err", err)
	}
	defer store.Close()

	// 6. Domain services
	blocklist := security.NewBlocklist(store)
	limiter := security.NewRateLimiter(store, cfg.MaxPerMinute, cfg.MaxPerHour)
	gate := relay.Gate{
		AdminID:       cfg.AdminID,
		TechManagerID: cfg.TechManagerID,
		MonitorID:     cfg.MonitorID,
	}

	// 7. Telegram transport + relay engine
	api, err := telegram.NewAPI(cfg.BotToken)
	if err != nil {
		log.Fatalw("failed to initialize telegram api", "err", err)
	}
	transport := telegram.NewTransport(api,
		telegram.WithSendRate(float64(cfg.SendRate), cfg.SendBurst),
		telegram.WithTransportLogger(log),
	)

	// 8. Forward error-level log entries to the tech manager chat
	if cfg.TechManagerID != 0 {
		log = logger.WithTelegramNotifier(log, func(text string) {
			transport.Send(context.Background(), cfg.TechManagerID,
				relay.Content{Kind: relay.KindText, Text: text}, nil)
		})
	}

	engine := relay.New(transport, store, blocklist, limiter, gate,
		cfg.AlbumWindow, cfg.CorrelationLimit, log)

	bot := telegram.New(api, engine, store, blocklist, cfg.AlbumWindow, log)

	// 9. Rate-event retention job
	retention := scheduler.New(time.Hour, func(ctx context.Context) {
		removed, err := limiter.Cleanup(ctx, cfg.RateRetention)
		if err != nil {
			log.Errorw("rate event cleanup failed", "err", err)
			return
		}
		log.Infow("rate events cleaned up", "removed", removed)
	}, log)
	go retention.Run(ctx)

	// 10. Start the bot loop
	go bot.Run(ctx)

	// 11. Wait for termination signal
	<-ctx.Done()
	log.Info("shutdown signal received, shutting down ...")

	retention.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics server shutdown error", "err", err)
	}

	log.Info("bye")
}
