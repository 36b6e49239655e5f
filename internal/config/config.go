package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database `envPrefix:"DATABASE_"`
	Redis       Redis    `envPrefix:"REDIS_"`
	Kafka       Kafka    `envPrefix:"KAFKA_"`
	SMTP        SMTP     `envPrefix:"SMTP_"`

	Paypal      Paypal      `envPrefix:"PAYPAL_"`
	DiscountAPI DiscountAPI `envPrefix:"DISCOUNT_API_"`
	Commission  Commission  `envPrefix:"COMMISSION_"`
	Payout      Payout      `envPrefix:"PAYOUT_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite
	URL    string `env:"URL"`
}

type Redis struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	QueueKey string `env:"QUEUE_KEY" envDefault:"payout:tasks"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"affiliate.created"`
	GroupID string   `env:"GROUP_ID" envDefault:"affiliate-mailer"`
}

type SMTP struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"465"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Currency     string `env:"CURRENCY" envDefault:"USD"`
}

type DiscountAPI struct {
	BaseURL string `env:"BASE_URL"`
	Token   string `env:"TOKEN"`
}

type Commission struct {
	// Rate applied to affiliates auto-registered from an incoming order.
	// Pending product sign-off; see DESIGN.md.
	DefaultRate decimal.Decimal `env:"DEFAULT_RATE" envDefault:"0.10"`
}

type Payout struct {
	Workers         int           `env:"WORKERS" envDefault:"4"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RatePerSecond   float64       `env:"RATE_PER_SECOND" envDefault:"5"`
	ProcessingLease time.Duration `env:"PROCESSING_LEASE" envDefault:"30m"`
	ReaperSchedule  string        `env:"REAPER_SCHEDULE" envDefault:"@every 5m"`
}
