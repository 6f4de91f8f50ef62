package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lumenpay/internal/identity/metrics"
	identityservice "lumenpay/internal/identity/service"
	identitystore "lumenpay/internal/identity/store/identity"
	"lumenpay/internal/ledger"
	"lumenpay/internal/platform/config"
	"lumenpay/internal/platform/httpserver"
	"lumenpay/internal/platform/logger"
	platformredis "lumenpay/internal/platform/redis"
	"lumenpay/internal/provisioner"
	"lumenpay/internal/resolver"
	settlementmetrics "lumenpay/internal/settlement/metrics"
	settlementservice "lumenpay/internal/settlement/service"
	"lumenpay/internal/settlement/store/mirror"
	"lumenpay/internal/storage"
	transport "lumenpay/internal/transport/http"
	"lumenpay/pkg/platform/audit"
	auditkafka "lumenpay/pkg/platform/audit/kafka"
	auditpublisher "lumenpay/pkg/platform/audit/publisher"
	auditmemory "lumenpay/pkg/platform/audit/store/memory"
	"lumenpay/pkg/platform/circuit"
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	// Persistence. Without a postgres URL everything lives in memory, which
	// is enough for local development against the test network.
	var (
		db            *sql.DB
		identityStore identityservice.IdentityStore
		mirrorStore   settlementservice.MirrorStore
		registry      resolver.RegistryReader
	)
	if cfg.Postgres.URL != "" {
		db, err = storage.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.ApplySchema(ctx, db); err != nil {
			return err
		}
		pg := identitystore.NewPostgres(db)
		identityStore, registry = pg, pg
		mirrorStore = mirror.NewPostgres(db)
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory stores")
		mem := identitystore.NewInMemory()
		identityStore, registry = mem, mem
		mirrorStore = mirror.NewInMemory()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}

	// Audit events go to kafka when brokers are configured, otherwise they
	// stay in an in-process store.
	var auditStore audit.Store
	if cfg.Audit.KafkaBrokers != "" {
		kafkaStore, err := auditkafka.New(strings.Split(cfg.Audit.KafkaBrokers, ","), cfg.Audit.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(256),
		auditpublisher.WithLogger(log))
	defer publisher.Close()

	gateway := ledger.NewGateway(cfg.Ledger.GatewayURL, cfg.Ledger.FriendbotURL)

	identity := identityservice.New(
		identityStore,
		provisioner.New(gateway, provisioner.WithLogger(log)),
		gateway,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(metrics.New()),
		identityservice.WithAuditPublisher(publisher),
	)

	resolverOpts := []resolver.Option{
		resolver.WithSuffix(cfg.Ledger.HandleSuffix),
		resolver.WithLogger(log),
	}
	if redisClient != nil {
		resolverOpts = append(resolverOpts,
			resolver.WithCache(resolver.NewRedisCache(redisClient.Client, cfg.Redis.CacheTTL, log)))
	}
	res := resolver.New(registry, resolverOpts...)

	engine := settlementservice.New(
		identityStore, res, mirrorStore, gateway,
		settlementservice.WithLogger(log),
		settlementservice.WithMetrics(settlementmetrics.New()),
		settlementservice.WithAuditPublisher(publisher),
		settlementservice.WithBreaker(circuit.New("ledger")),
		settlementservice.WithSubmitTimeout(cfg.Ledger.SubmitTimeout),
	)

	router := transport.NewRouter(transport.RouterConfig{
		Identity:      identity,
		Resolver:      res,
		Settlements:   engine,
		Health:        health{db: db, redis: redisClient},
		JWTSigningKey: cfg.Auth.JWTSigningKey,
		Logger:        log,
	})

	server := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type health struct {
	db    *sql.DB
	redis *platformredis.Client
}

func (h health) Health(ctx context.Context) error {
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			return err
		}
	}
	return h.redis.Health(ctx)
}
