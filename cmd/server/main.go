package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"semear/internal/credential"
	"semear/internal/credential/handler"
	"semear/internal/credential/service"
	"semear/internal/credential/store"
	"semear/internal/did"
	jwttoken "semear/internal/jwt_token"
	"semear/internal/platform/config"
	"semear/internal/platform/httpserver"
	"semear/internal/platform/logger"
	"semear/internal/platform/metrics"
	"semear/internal/platform/postgres"
	"semear/internal/platform/redis"
	"semear/internal/platform/tracing"
	httptransport "semear/internal/transport/http"
	"semear/pkg/platform/audit"
	"semear/pkg/platform/audit/publisher"
	kafkastore "semear/pkg/platform/audit/store/kafka"
	"semear/pkg/platform/audit/store/logsink"
	"semear/pkg/platform/circuit"
	"semear/pkg/platform/middleware/ratelimit"
	strutil "semear/pkg/platform/strings"
)

// main loads configuration, connects the stores and audit sink, and serves
// the API until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "semear:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	rot, err := config.RotationFromEnv()
	if err != nil {
		return fmt.Errorf("rotation config: %w", err)
	}
	key, err := issuerKey(cfg.Issuer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("shutdown step failed", "error", err)
			}
		}
	}()

	credStore, storeName, err := openStore(ctx, cfg, log, &closers)
	if err != nil {
		return err
	}

	auditStore, err := openAudit(ctx, cfg.Kafka, log, &closers)
	if err != nil {
		return err
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
	closers = append(closers, func() error { auditPublisher.Close(); return nil })

	trusted, err := trustedIssuers(key, cfg.Issuer.TrustedIssuers)
	if err != nil {
		return err
	}
	engine := jwttoken.NewEngine(jwttoken.WithTrustedIssuers(trusted...))
	issuer, err := credential.NewIssuer(engine, key, rot, cfg.Issuer.CooperativeName, credential.WithValidity(cfg.Issuer.Validity))
	if err != nil {
		return err
	}
	verifier, err := credential.NewVerifier(engine, rot)
	if err != nil {
		return err
	}

	tracing.Setup()
	svc, err := service.New(issuer, verifier, credStore,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(metrics.New()),
	)
	if err != nil {
		return err
	}

	h := handler.New(svc, log, handler.WithPublicURL(cfg.Server.PublicURL), handler.WithStoreName(storeName))
	router := httptransport.NewRouter(httptransport.Options{
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window),
	}, h)

	srv := httpserver.New(cfg.Server.Addr, router, log)
	log.Info("starting semear issuer",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"cooperative_did", key.DID(),
		"store", storeName,
		"rotation", rot.String(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func issuerKey(cfg config.Issuer) (*did.IssuerKey, error) {
	if cfg.Mnemonic != "" {
		return did.KeyFromMnemonic(cfg.Mnemonic, cfg.Passphrase)
	}
	return did.KeyFromHex(cfg.PrivateKey)
}

func trustedIssuers(key *did.IssuerKey, extra []string) ([]did.DID, error) {
	out := []did.DID{key.DID()}
	for _, raw := range strutil.Unique(extra) {
		d := did.DID(raw)
		if d == key.DID() {
			continue
		}
		if _, err := did.ParseIssuerDID(d); err != nil {
			return nil, fmt.Errorf("trusted issuer %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// openStore connects every configured backend and keeps the first healthy
// one, preferring Postgres, then Redis, then process memory.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger, closers *[]func() error) (store.Store, string, error) {
	var candidates []store.Candidate

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Warn("postgres unavailable", "error", err)
	}
	if db != nil {
		*closers = append(*closers, db.Close)
		if pg := migrated(ctx, db, log); pg != nil {
			candidates = append(candidates, store.Candidate{Name: "postgres", Store: pg})
		}
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable", "error", err)
	}
	if rc != nil {
		*closers = append(*closers, rc.Close)
		candidates = append(candidates, store.Candidate{Name: "redis", Store: store.NewRedis(rc.Client)})
	}

	mem := store.NewMemory()
	mem.Start(10 * time.Minute)
	*closers = append(*closers, func() error { mem.Close(); return nil })
	candidates = append(candidates, store.Candidate{Name: "memory", Store: mem})

	selected, name, err := store.Select(ctx, log, candidates...)
	if err != nil {
		return nil, "", err
	}
	if name == "memory" {
		log.Warn("credentials are kept in memory and expire after 24h; configure DATABASE_URL for durable storage")
	}
	return selected, name, nil
}

func migrated(ctx context.Context, db *sql.DB, log *slog.Logger) *store.PostgresStore {
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		log.Warn("postgres migration failed", "error", err)
		return nil
	}
	return pg
}

// openAudit returns the Kafka-backed audit store when brokers are configured,
// falling back to the structured log.
func openAudit(ctx context.Context, cfg config.Kafka, log *slog.Logger, closers *[]func() error) (audit.Store, error) {
	sink := logsink.New(log)
	if len(cfg.Brokers) == 0 {
		return sink, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	*closers = append(*closers, func() error { client.Close(); return nil })

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafkastore.EnsureTopic(setupCtx, kadm.NewClient(client), cfg.Topic, cfg.Partitions, cfg.Replication); err != nil {
		log.Warn("audit topic setup failed; events fall back to logs until the broker recovers", "error", err)
	}

	return kafkastore.New(client, cfg.Topic,
		kafkastore.WithFallback(sink),
		kafkastore.WithBreaker(circuit.New("audit-kafka")),
		kafkastore.WithLogger(log),
	), nil
}
