package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// GatewayConfig ключи одного платёжного провайдера
type GatewayConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
}

// SchedulerConfig интервалы и пороги автоматизации эскроу.
// Все значения настраиваются через окружение, чтобы менять их без редеплоя.
type SchedulerConfig struct {
	CaptureInterval time.Duration // периодичность auto-capture
	ReleaseInterval time.Duration // периодичность auto-release
	PayoutInterval  time.Duration // периодичность auto-payout
	StuckInterval   time.Duration // периодичность проверки зависших эскроу

	CaptureDelay time.Duration // сколько держится одобрение клиента до авто-захвата
	ReleaseDelay time.Duration // простой IN_PROGRESS до авто-релиза
	PayoutDelay  time.Duration // простой до авто-выплаты
	StuckAge     time.Duration // возраст FUNDS_HELD для пометки "зависший"

	ClaimCooldown time.Duration // задержка освобождения id после обработки
	BatchLimit    int
}

// Config хранит все настройки приложения
type Config struct {
	Port   string
	DSN    string
	AppEnv string

	TokenTypeTTL map[string]time.Duration

	RedisAddr string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	Gateways  map[string]GatewayConfig
	Scheduler SchedulerConfig
}

// Load читает .env (если есть) и возвращает заполненный Config
func Load() (*Config, error) {
	// Попробуем загрузить файл .env — если его нет, просто пропускаем
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN must be set")
	}

	cfg := &Config{
		Port:   port,
		DSN:    dsn,
		AppEnv: os.Getenv("APP_ENV"),
		TokenTypeTTL: map[string]time.Duration{
			"access":  envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			"refresh": envDuration("REFRESH_TOKEN_TTL", 720*time.Hour),
		},
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    envString("MINIO_BUCKET", "proof-of-work"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Gateways:       loadGateways(),
		Scheduler: SchedulerConfig{
			CaptureInterval: envDuration("ESCROW_CAPTURE_INTERVAL", time.Hour),
			ReleaseInterval: envDuration("ESCROW_RELEASE_INTERVAL", 6*time.Hour),
			PayoutInterval:  envDuration("ESCROW_PAYOUT_INTERVAL", 12*time.Hour),
			StuckInterval:   envDuration("ESCROW_STUCK_INTERVAL", 24*time.Hour),
			CaptureDelay:    envDuration("ESCROW_CAPTURE_DELAY", 24*time.Hour),
			ReleaseDelay:    envDuration("ESCROW_RELEASE_DELAY", 168*time.Hour),
			PayoutDelay:     envDuration("ESCROW_PAYOUT_DELAY", 48*time.Hour),
			StuckAge:        envDuration("ESCROW_STUCK_AGE", 720*time.Hour),
			ClaimCooldown:   envDuration("ESCROW_CLAIM_COOLDOWN", 5*time.Minute),
			BatchLimit:      100,
		},
	}
	return cfg, nil
}

// loadGateways собирает ключи провайдеров из окружения.
// Провайдер без секретного ключа считается не сконфигурированным.
func loadGateways() map[string]GatewayConfig {
	prefixes := map[string]string{
		"paymongo": "PAYMONGO",
		"xendit":   "XENDIT",
		"stripe":   "STRIPE",
		"paypal":   "PAYPAL",
		"paymaya":  "PAYMAYA",
	}
	out := make(map[string]GatewayConfig)
	for name, prefix := range prefixes {
		gc := GatewayConfig{
			SecretKey:     os.Getenv(prefix + "_SECRET_KEY"),
			PublicKey:     os.Getenv(prefix + "_PUBLIC_KEY"),
			WebhookSecret: os.Getenv(prefix + "_WEBHOOK_SECRET"),
		}
		if gc.SecretKey != "" {
			out[name] = gc
		}
	}
	return out
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
