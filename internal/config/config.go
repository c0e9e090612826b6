package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Orders     OrdersConfig     `yaml:"orders"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Migrations MigrationsConfig `yaml:"migrations"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// TrustProxy учитывать X-Forwarded-* при сборке callback URL; только за своим прокси
	TrustProxy bool `yaml:"trust_proxy" env:"HTTP_TRUST_PROXY" env-default:"false"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`
}

// RedisConfig хранилище сессий
type RedisConfig struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	DB       int    `yaml:"db" env-default:"0"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
}

// KafkaConfig публикация платёжных событий; выключена по умолчанию
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env-default:"false"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" env-default:"payment-events"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env-default:"false"`
	Endpoint    string `yaml:"endpoint" env-default:"localhost:4318"`
	ServiceName string `yaml:"service_name" env-default:"crypto-shop"`
}

// OrdersConfig параметры заказов
type OrdersConfig struct {
	TTL             time.Duration `yaml:"ttl" env-default:"30m"`
	MaxQuantity     int           `yaml:"max_quantity" env-default:"10"`
	DefaultCurrency string        `yaml:"default_currency" env-default:"USD"`
	Currencies      []string      `yaml:"currencies" env-default:"USD,EUR"`
	DefaultProvider string        `yaml:"default_provider" env-default:"wolvpay"`
}

// ProvidersConfig настройки платёжных провайдеров.
// Ключи и секреты берутся только из окружения.
type ProvidersConfig struct {
	WolvPay WolvPayConfig `yaml:"wolvpay"`
	OxaPay  OxaPayConfig  `yaml:"oxapay"`
}

type WolvPayConfig struct {
	APIURL        string        `yaml:"api_url" env:"WOLVPAY_API_URL"`
	MerchantKey   string        `yaml:"-" env:"WOLVPAY_MERCHANT_KEY"`
	WebhookSecret string        `yaml:"-" env:"WOLVPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
}

type OxaPayConfig struct {
	APIURL        string        `yaml:"api_url" env-default:"https://api.oxapay.com"`
	APIKey        string        `yaml:"-" env:"OXAPAY_API_KEY"`
	WebhookSecret string        `yaml:"-" env:"OXAPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	// локальный .env не обязателен
	_ = godotenv.Load()

	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}
