package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/internal/platform/webhook"
)

// MinProductionSecretLength is the shortest JWT_SECRET accepted in production.
const MinProductionSecretLength = 32

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBSSLMode   string `mapstructure:"DB_SSLMODE"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTExpiresIn     time.Duration `mapstructure:"JWT_EXPIRES_IN"`
	AuthCookieSecure bool          `mapstructure:"AUTH_COOKIE_SECURE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	FrontendURL string   `mapstructure:"FRONTEND_URL"`
	UploadPath  string   `mapstructure:"UPLOAD_PATH"`
	MaxFileSize string   `mapstructure:"MAX_FILE_SIZE"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `mapstructure:"GOOGLE_CALLBACK_URL"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	SESRegion          string        `mapstructure:"SES_REGION"`
	SESSender          string        `mapstructure:"SES_SENDER"`
	AWSAccessKeyID     string        `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string        `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	ReminderInterval   time.Duration `mapstructure:"REMINDER_INTERVAL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	WebhookURLs   []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret string   `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents []string `mapstructure:"WEBHOOK_EVENTS"`

	OTLPEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"OTEL_TRACES_SAMPLE_RATE"`
}

var envKeys = []string{
	"PORT", "ENV",
	"DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_EXPIRES_IN", "AUTH_COOKIE_SECURE",
	"CORS_ORIGINS", "FRONTEND_URL", "UPLOAD_PATH", "MAX_FILE_SIZE",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_CALLBACK_URL",
	"AMQP_URL", "AMQP_EXCHANGE",
	"SES_REGION", "SES_SENDER", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "REMINDER_INTERVAL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_SAMPLE_RATE",
}

// Load reads the environment, falling back to a .env file in the working
// directory. Either DATABASE_URL or DB_HOST must be set.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_EXPIRES_IN", auth.DefaultTokenTTL)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("UPLOAD_PATH", "./uploads")
	v.SetDefault("MAX_FILE_SIZE", "5M")
	v.SetDefault("AMQP_EXCHANGE", "clinic.events")
	v.SetDefault("SES_REGION", "us-east-1")
	v.SetDefault("REMINDER_INTERVAL", 15*time.Minute)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("WEBHOOK_EVENTS", "appointment.*,invoice.*")
	v.SetDefault("OTEL_TRACES_SAMPLE_RATE", 1.0)

	// Bind explicitly so Unmarshal sees variables without defaults.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.WebhookURLs = splitList(cfg.WebhookURLs)
	cfg.WebhookEvents = splitList(cfg.WebhookEvents)
	if !v.IsSet("AUTH_COOKIE_SECURE") {
		cfg.AuthCookieSecure = cfg.IsProduction()
	}

	if cfg.DatabaseURL == "" && cfg.DBHost == "" {
		return nil, fmt.Errorf("DATABASE_URL or DB_HOST is required")
	}
	return cfg, nil
}

// splitList expands a single comma-separated value and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN returns DATABASE_URL, or a URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return db.Params{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}.URL()
}

// MaxFileBytes is MAX_FILE_SIZE in bytes.
func (c *Config) MaxFileBytes() int64 {
	return middleware.ParseSize(c.MaxFileSize)
}

func (c *Config) Google() auth.GoogleConfig {
	return auth.GoogleConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		CallbackURL:  c.GoogleCallbackURL,
	}
}

func (c *Config) SES() notification.SESConfig {
	return notification.SESConfig{
		Region:          c.SESRegion,
		Sender:          c.SESSender,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
	}
}

func (c *Config) Webhooks() webhook.Config {
	return webhook.Config{
		URLs:       c.WebhookURLs,
		Secret:     c.WebhookSecret,
		Events:     c.WebhookEvents,
		MaxRetries: 3,
	}
}

func (c *Config) Telemetry(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    c.Env,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRate:     c.TraceSampleRate,
	}
}

// Validate checks that the configuration is safe to run. Outside
// development JWT_SECRET is required; in production it must be at least
// MinProductionSecretLength bytes and auth cookies must be Secure.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "test", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, test, staging or production, got %q", c.Env)
	}

	if c.JWTSecret == "" && !c.IsDev() {
		return fmt.Errorf("JWT_SECRET is required when ENV=%s", c.Env)
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < MinProductionSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in production, got %d",
				MinProductionSecretLength, len(c.JWTSecret))
		}
		if !c.AuthCookieSecure {
			return fmt.Errorf("AUTH_COOKIE_SECURE cannot be false in production")
		}
	}

	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive, got %s", c.JWTExpiresIn)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool size: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATE must be between 0 and 1, got %g", c.TraceSampleRate)
	}
	if c.ReminderInterval < time.Minute {
		return fmt.Errorf("REMINDER_INTERVAL must be at least 1m, got %s", c.ReminderInterval)
	}

	if len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URLS is set")
	}

	// Google login needs all three settings or none.
	g := c.Google()
	if (g.ClientID != "" || g.ClientSecret != "") && (!g.Enabled() || g.CallbackURL == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_CALLBACK_URL must be set together")
	}
	return nil
}
