// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	FrontendURL             string `yaml:"frontend_url" env-default:"http://localhost:3000"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWT                     `yaml:"jwt"`
	Lockout                 `yaml:"lockout"`
	AccessCode              `yaml:"access_code"`
	TMDB                    `yaml:"tmdb"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	CORS                    `yaml:"cors"`
	RateLimit               `yaml:"rate_limit"`
	Bootstrap               `yaml:"bootstrap"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	// PlansTTL время жизни закешированного списка тарифов.
	PlansTTL time.Duration `yaml:"plans_ttl" env-default:"5m"`
}

// JWT настройки выпуска и проверки токенов.
type JWT struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTTL  time.Duration `yaml:"access_ttl" env-default:"1h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"720h"`
	// SkipIPCheck отключает привязку refresh-токена к IP клиента.
	SkipIPCheck bool `yaml:"skip_ip_check" env:"JWT_SKIP_IP_CHECK"`
}

// Lockout настройки блокировки после неудачных попыток входа.
type Lockout struct {
	MaxAttempts int           `yaml:"max_attempts" env-default:"5"`
	Duration    time.Duration `yaml:"duration" env-default:"15m"`
}

// AccessCode настройки генерации кодов доступа.
type AccessCode struct {
	Length      int `yaml:"length" env-default:"16"`
	MaxAttempts int `yaml:"max_attempts" env-default:"3"`
}

// TMDB настройки клиента The Movie Database.
type TMDB struct {
	APIKey       string        `yaml:"api_key" env:"TMDB_API_KEY"`
	BaseURL      string        `yaml:"base_url" env-default:"https://api.themoviedb.org/3"`
	ImageBaseURL string        `yaml:"image_base_url" env-default:"https://image.tmdb.org/t/p"`
	Timeout      time.Duration `yaml:"timeout" env-default:"10s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

// RabbitMQ настройки подключения к брокеру.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Exchange   string        `yaml:"exchange" env-default:"vortextv"`
}

// SMTP настройки почтового сервера для рассылки писем.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"password" env:"SMTP_PASSWORD"`
}

// CORS разрешенные источники для браузерного фронтенда.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env-default:"http://localhost:3000"`
}

// RateLimit лимиты запросов для публичных и проксирующих маршрутов.
type RateLimit struct {
	LoginPerMinute  int     `yaml:"login_per_minute" env-default:"10"`
	RegisterPerHour int     `yaml:"register_per_hour" env-default:"5"`
	CatalogRPS      float64 `yaml:"catalog_rps" env-default:"5"`
	CatalogBurst    int     `yaml:"catalog_burst" env-default:"10"`
}

// Bootstrap учетная запись суперадмина, создаваемая при первом запуске.
type Bootstrap struct {
	SuperadminUsername string `yaml:"superadmin_username" env:"BOOTSTRAP_SUPERADMIN_USERNAME"`
	SuperadminEmail    string `yaml:"superadmin_email" env:"BOOTSTRAP_SUPERADMIN_EMAIL"`
	SuperadminPassword string `yaml:"superadmin_password" env:"BOOTSTRAP_SUPERADMIN_PASSWORD"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла, переменные окружения имеют приоритет.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsLocal сообщает, запущен ли сервис в локальном окружении.
func (c *Config) IsLocal() bool {
	return c.Env == "local"
}
