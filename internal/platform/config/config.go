package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	TokenTTL      time.Duration
	AdminToken    string

	BootstrapAdmin BootstrapAdminConfig

	Mongo        MongoConfig
	Blob         BlobConfig
	Redis        RedisConfig
	Postgres     PostgresConfig
	Events       EventsConfig
	SMTP         SMTPConfig
	Registration RegistrationConfig
}

// MongoConfig selects the document store. Empty URI means the in-memory store.
type MongoConfig struct {
	URI      string
	Database string
}

// BlobConfig selects the blob store. Empty region means the in-memory store.
type BlobConfig struct {
	Region           string
	Endpoint         string
	AccessKey        string
	SecretKey        string
	StudentIDBucket  string
	PaymentBucket    string
	PreviewURLExpiry time.Duration
}

// RedisConfig configures the wizard session store and token revocation list.
// Empty URL means in-memory implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the account store and audit log. Empty URL means in-memory.
type PostgresConfig struct {
	URL string
}

// EventsConfig selects the status event transport.
type EventsConfig struct {
	Driver       string // log, kafka or amqp
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	AMQPURL      string
	AMQPQueue    string
}

// SMTPConfig configures the notification mailer. Empty host means a log mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BootstrapAdminConfig seeds the first staff account at startup. Empty email disables it.
type BootstrapAdminConfig struct {
	Email    string
	Password string
	Name     string
}

// RegistrationConfig carries workflow tunables.
type RegistrationConfig struct {
	EventType            string
	Fee                  decimal.Decimal
	IdentityPollAttempts int
	IdentityPollInterval time.Duration
	SessionTTL           time.Duration
	MaxUploadBytes       int64
}

const defaultMaxUploadBytes = 5 << 20

// FromEnv builds a Server config from environment variables, loading a .env
// file first when one is present.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	fee, err := decimal.NewFromString(envOr("REGISTRATION_FEE", "150000"))
	if err != nil {
		return Server{}, fmt.Errorf("REGISTRATION_FEE: %w", err)
	}
	if fee.IsNegative() {
		return Server{}, fmt.Errorf("REGISTRATION_FEE must not be negative")
	}

	p := parser{}
	cfg := Server{
		Addr:          envOr("NCC_ADDR", ":8080"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenTTL:      p.duration("TOKEN_TTL", 24*time.Hour),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		BootstrapAdmin: BootstrapAdminConfig{
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
			Name:     envOr("ADMIN_NAME", "NCC Staff"),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: envOr("MONGO_DATABASE", "ncc"),
		},
		Blob: BlobConfig{
			Region:           os.Getenv("S3_REGION"),
			Endpoint:         os.Getenv("S3_ENDPOINT"),
			AccessKey:        os.Getenv("S3_ACCESS_KEY"),
			SecretKey:        os.Getenv("S3_SECRET_KEY"),
			StudentIDBucket:  envOr("BUCKET_STUDENT_ID", "ncc-student-ids"),
			PaymentBucket:    envOr("BUCKET_PAYMENT", "ncc-payment-screenshots"),
			PreviewURLExpiry: p.duration("PREVIEW_URL_EXPIRY", 15*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Events: EventsConfig{
			Driver:       envOr("EVENTS_DRIVER", "log"),
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   envOr("KAFKA_TOPIC", "ncc.registration.status"),
			KafkaGroup:   envOr("KAFKA_GROUP", "ncc-notify"),
			AMQPURL:      os.Getenv("AMQP_URL"),
			AMQPQueue:    envOr("AMQP_QUEUE", "ncc.registration.status"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     p.int("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envOr("SMTP_FROM", "no-reply@ncc.local"),
		},
		Registration: RegistrationConfig{
			EventType:            envOr("EVENT_TYPE", "NCC"),
			Fee:                  fee,
			IdentityPollAttempts: p.int("IDENTITY_POLL_ATTEMPTS", 5),
			IdentityPollInterval: p.duration("IDENTITY_POLL_INTERVAL", 200*time.Millisecond),
			SessionTTL:           p.duration("SESSION_TTL", 24*time.Hour),
			MaxUploadBytes:       int64(p.int("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
	}
	if p.err != nil {
		return Server{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	switch s.Events.Driver {
	case "log":
	case "kafka":
		if len(s.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("EVENTS_DRIVER=kafka requires KAFKA_BROKERS")
		}
	case "amqp":
		if s.Events.AMQPURL == "" {
			return fmt.Errorf("EVENTS_DRIVER=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", s.Events.Driver)
	}
	if s.BootstrapAdmin.Email != "" && s.BootstrapAdmin.Password == "" {
		return fmt.Errorf("ADMIN_EMAIL requires ADMIN_PASSWORD")
	}
	if s.Registration.IdentityPollAttempts < 1 {
		return fmt.Errorf("IDENTITY_POLL_ATTEMPTS must be at least 1")
	}
	if s.Registration.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// parser records the first malformed variable so FromEnv can report it.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
