package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spok95/gastro-stock/internal/config"
	"github.com/Spok95/gastro-stock/internal/domain/allocation"
	"github.com/Spok95/gastro-stock/internal/domain/catalog"
	"github.com/Spok95/gastro-stock/internal/domain/ledger"
	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/production"
	"github.com/Spok95/gastro-stock/internal/infra/db"
	httpx "github.com/Spok95/gastro-stock/internal/infra/http"
	"github.com/Spok95/gastro-stock/internal/infra/logger"
	"github.com/Spok95/gastro-stock/internal/infra/metrics"
	"github.com/Spok95/gastro-stock/internal/infra/notify"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	catalogRepo := catalog.NewRepo(pool)
	lotsRepo := lots.NewRepo(pool)
	led := ledger.New(pool)
	allocator := allocation.New(catalogRepo, lotsRepo)
	recipesRepo := production.NewRepo(pool)
	machine := production.NewMachine(led, lotsRepo)

	var notifier *notify.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = notify.New(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)
		if err != nil {
			log.Error("telegram init failed", "err", err)
			return
		}
		log.Info("telegram notifier ready", "admin_chat", cfg.Telegram.AdminChatID)
	}

	if cfg.Expiry.SweepEnabled {
		go runExpirySweeper(ctx, log, led, notifier, cfg.Expiry.SweepInterval)
		log.Info("expiry sweeper started", "interval", cfg.Expiry.SweepInterval)
	}

	api := httpx.NewAPI(log, catalogRepo, lotsRepo, allocator, led, recipesRepo, machine, notifier, cfg.Stock.LowThreshold)
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, api)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}

// runExpirySweeper периодически помечает просроченные партии и снимает их
// остаток с совокупного кэша. По умолчанию выключен: срок годности —
// информационное поле, а не запрет на списание.
func runExpirySweeper(ctx context.Context, log *slog.Logger, led *ledger.Ledger, notifier *notify.Notifier, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			swept, err := led.ExpireDue(ctx, time.Now())
			if err != nil {
				log.Error("expiry sweep failed", "err", err)
				continue
			}
			if len(swept) == 0 {
				continue
			}
			metrics.ExpiredLots.Add(float64(len(swept)))
			log.Info("expiry sweep done", "lots", len(swept))
			notifier.ExpirySweep(swept)
		}
	}
}
