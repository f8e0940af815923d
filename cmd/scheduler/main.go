package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-anon-bot/internal/adapters/repo"
	"tg-anon-bot/internal/adapters/telegram"
	"tg-anon-bot/internal/infra/config"
	"tg-anon-bot/internal/infra/db"
	"tg-anon-bot/internal/infra/log"
	"tg-anon-bot/internal/infra/metrics"
	"tg-anon-bot/internal/usecase/delivery"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool, cfg.RootAdmin.Handle)
	if err := repoAdapter.EnsureSchema(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подготовить схему БД")
	}
	transport := telegram.NewTransport(botAPI, logger, cfg.RootAdmin.Contact)
	deliveryService := delivery.NewService(repoAdapter.Messages(), transport, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.StartServer(ctx, logger, ":9090")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(cfg.Scheduler.PollInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", cfg.Scheduler.PollInterval).Msg("scheduler: запущен")
	for {
		select {
		case <-ticker.C:
			dispatched, err := deliveryService.Tick(ctx, time.Now())
			if err != nil {
				logger.Error().Err(err).Msg("scheduler: тик не удался")
				continue
			}
			if dispatched > 0 {
				logger.Info().Int("dispatched", dispatched).Msg("scheduler: отложенные сообщения доставлены")
			}
		case <-stop:
			logger.Info().Msg("scheduler: остановка")
			return
		}
	}
}
