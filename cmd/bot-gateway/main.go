package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-anon-bot/internal/adapters/bot"
	"tg-anon-bot/internal/adapters/repo"
	"tg-anon-bot/internal/adapters/telegram"
	"tg-anon-bot/internal/domain"
	"tg-anon-bot/internal/infra/cache"
	"tg-anon-bot/internal/infra/config"
	"tg-anon-bot/internal/infra/db"
	appHTTP "tg-anon-bot/internal/infra/http"
	"tg-anon-bot/internal/infra/log"
	"tg-anon-bot/internal/infra/metrics"
	"tg-anon-bot/internal/usecase/compose"
	"tg-anon-bot/internal/usecase/delivery"
	"tg-anon-bot/internal/usecase/gate"
	"tg-anon-bot/internal/usecase/quota"
	"tg-anon-bot/internal/usecase/registry"
	"tg-anon-bot/internal/usecase/reveal"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("часовой пояс не найден, используется UTC")
		loc = time.UTC
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.RootAdmin.Handle)
	if err := repoAdapter.EnsureSchema(); err != nil {
		logger.Fatal().Err(err).Msg("не удалось подготовить схему БД")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	transport := telegram.NewTransport(botAPI, logger, cfg.RootAdmin.Contact)

	var gateCache domain.Cache
	if cfg.RedisAddr != "" {
		gateCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	limits := domain.QuotaLimits{Standard: cfg.Limits.DailyMessages, Special: cfg.Limits.SpecialMessages}
	quotaService := quota.NewService(repoAdapter, limits)
	registryService := registry.NewService(repoAdapter)
	deliveryService := delivery.NewService(repoAdapter.Messages(), transport, logger)
	revealService := reveal.NewService(repoAdapter.Messages(), repoAdapter, transport, logger)
	gateService := gate.NewService(repoAdapter, transport, gateCache, cfg.Gate.CacheTTL, logger)
	composeService := compose.NewService(repoAdapter, repoAdapter.Messages(), quotaService, registryService, deliveryService, loc, logger)

	h := bot.NewHandler(botAPI, logger, composeService, revealService, registryService, quotaService, gateService, repoAdapter, repoAdapter, cfg.Telegram.BotName, cfg.Limits.BossGrantDays)

	srv := appHTTP.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
