package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		BotName    string `envconfig:"TG_BOT_NAME"`
	} `envconfig:""`

	RootAdmin struct {
		// Handle назначается корневым администратором при первом контакте.
		Handle string `envconfig:"ROOT_ADMIN_HANDLE"`
		// Contact используется в кнопке «связаться с админом».
		Contact string `envconfig:"ROOT_ADMIN_CONTACT"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Limits struct {
		DailyMessages   int `envconfig:"DAILY_MESSAGE_LIMIT" default:"5"`
		SpecialMessages int `envconfig:"SPECIAL_MESSAGE_LIMIT" default:"20"`
		BossGrantDays   int `envconfig:"BOSS_GRANT_DAYS" default:"30"`
	} `envconfig:""`

	Scheduler struct {
		PollInterval time.Duration `envconfig:"SCHEDULER_POLL_INTERVAL" default:"10s"`
	} `envconfig:""`

	Gate struct {
		CacheTTL time.Duration `envconfig:"GATE_CACHE_TTL" default:"5m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
