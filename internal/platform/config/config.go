package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	strutil "semear/pkg/platform/strings"
)

// Config is the full server configuration, read once at startup.
type Config struct {
	Server    Server
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Issuer    Issuer
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	PublicURL       string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Development reports whether the server runs with development defaults.
func (s Server) Development() bool {
	return s.Environment == "development"
}

// Database is optional; an empty URL skips Postgres.
type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is optional; an empty URL skips Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka feeds the audit trail. With no brokers events go to the log only.
type Kafka struct {
	Brokers     []string
	Topic       string
	Partitions  int32
	Replication int16
}

// Issuer identifies the cooperative and its signing key. Exactly one of
// PrivateKey or Mnemonic must be set.
type Issuer struct {
	CooperativeName string
	PrivateKey      string
	Mnemonic        string
	Passphrase      string
	Validity        time.Duration
	TrustedIssuers  []string
}

// RateLimit bounds requests per client IP on the API routes.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs envErrors
	cfg := Config{
		Server: Server{
			Addr:            addrFromEnv(),
			Environment:     getenv("ENVIRONMENT", "development"),
			LogLevel:        getenv("LOG_LEVEL", "info"),
			PublicURL:       strings.TrimRight(getenv("API_URL", "http://localhost:3000"), "/"),
			AllowedOrigins:  strutil.List(getenv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
			ShutdownTimeout: errs.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: errs.int("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: errs.int("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     errs.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: errs.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  errs.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  errs.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: errs.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:     strutil.List(os.Getenv("KAFKA_BROKERS")),
			Topic:       getenv("KAFKA_AUDIT_TOPIC", "semear.audit"),
			Partitions:  int32(errs.int("KAFKA_AUDIT_PARTITIONS", 3)),
			Replication: int16(errs.int("KAFKA_AUDIT_REPLICATION", 1)),
		},
		Issuer: Issuer{
			CooperativeName: getenv("COOPERATIVA_NOME", "Cooperativa Semear"),
			PrivateKey:      os.Getenv("COOPERATIVA_PRIVATE_KEY"),
			Mnemonic:        os.Getenv("COOPERATIVA_MNEMONIC"),
			Passphrase:      os.Getenv("COOPERATIVA_PASSPHRASE"),
			Validity:        errs.duration("CREDENTIAL_VALIDITY", 365*24*time.Hour),
			TrustedIssuers:  strutil.List(os.Getenv("TRUSTED_ISSUERS")),
		},
		RateLimit: RateLimit{
			Requests: errs.int("RATE_LIMIT_REQUESTS", 100),
			Window:   errs.duration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}
	if err := errs.err(); err != nil {
		return Config{}, err
	}
	if cfg.Issuer.PrivateKey == "" && cfg.Issuer.Mnemonic == "" {
		return Config{}, fmt.Errorf("config: COOPERATIVA_PRIVATE_KEY or COOPERATIVA_MNEMONIC is required")
	}
	if cfg.Issuer.PrivateKey != "" && cfg.Issuer.Mnemonic != "" {
		return Config{}, fmt.Errorf("config: set only one of COOPERATIVA_PRIVATE_KEY and COOPERATIVA_MNEMONIC")
	}
	return cfg, nil
}

func addrFromEnv() string {
	if addr := os.Getenv("SEMEAR_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":3000"
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// list splits a comma separated value, dropping blanks.
type envErrors []string

func (e *envErrors) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		*e = append(*e, fmt.Sprintf("%s=%q is not a non-negative integer", key, raw))
		return fallback
	}
	return v
}

func (e *envErrors) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*e = append(*e, fmt.Sprintf("%s=%q is not a positive duration", key, raw))
		return fallback
	}
	return v
}

func (e envErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(e, "; "))
}
