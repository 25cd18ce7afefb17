package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"indexcover/internal/attestation"
	"indexcover/internal/event"
	indicatorHandler "indexcover/internal/indicator/handler"
	indicatorStore "indexcover/internal/indicator/store"
	jwttoken "indexcover/internal/jwt_token"
	"indexcover/internal/oracle"
	"indexcover/internal/ownership"
	"indexcover/internal/platform/config"
	"indexcover/internal/platform/httpserver"
	"indexcover/internal/platform/kafka"
	"indexcover/internal/platform/logger"
	"indexcover/internal/platform/middleware"
	platformredis "indexcover/internal/platform/redis"
	policyHandler "indexcover/internal/policy/handler"
	policyMetrics "indexcover/internal/policy/metrics"
	"indexcover/internal/policy/service"
	policyStore "indexcover/internal/policy/store"
	"indexcover/internal/token"
	"indexcover/pkg/domain"
)

// main wires stores, the settlement engine, and the HTTP surface, then runs
// until interrupted. Business logic lives in the internal packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: postgres when a DSN is configured, in-memory
	// otherwise.
	var (
		policies   service.PolicyStore
		shares     service.ShareLedger
		indicators indicatorStore.Store
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		policies = policyStore.NewPostgres(pool)
		shares = ownership.NewPostgres(pool)
		indicators = indicatorStore.NewPostgres(pool)
		log.Info("using postgres stores")
	} else {
		policies = policyStore.NewMemory()
		shares = ownership.NewMemory()
		indicators = indicatorStore.NewMemory()
		log.Info("using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		indicators = indicatorStore.NewCached(indicators, redisClient)
		log.Info("indicator cache enabled")
	}

	events := event.Fanout{event.NewLogPublisher(log)}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Error("kafka init failed", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		events = append(events, event.NewKafkaPublisher(producer))
		log.Info("kafka publisher enabled", "topic", cfg.Kafka.Topic)
	}

	// The in-process token backs local runs; a deployment fronting a real
	// collateral token swaps in its adapter here.
	engineAccount := domain.AccountID(cfg.EngineAccount)
	collateral := token.NewMemory(engineAccount)

	var verifier attestation.Verifier = attestation.InsecureVerifier{}
	if cfg.Feed.MerkleRoots != "" {
		roots, err := attestation.ParseRootMap(cfg.Feed.MerkleRoots)
		if err != nil {
			log.Error("merkle root config invalid", "error", err)
			os.Exit(1)
		}
		verifier = attestation.NewMerkleVerifier(roots)
	} else {
		log.Warn("proof verification disabled, accepting unverified oracle payloads")
	}

	engine := service.New(policies, shares, indicators, collateral, verifier, engineAccount,
		service.WithLogger(log),
		service.WithEvents(events),
		service.WithMetrics(policyMetrics.New()),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "indexcover")
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.RateLimit(limiter))

	policyHandler.New(engine, log, jwtService, cfg.OracleAPIKeyHash).Register(router)
	indicatorHandler.New(engine, log).Register(router)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting indexcover", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Feed.ProofURL != "" {
		poller := oracle.NewPoller(engine, cfg.Feed.ProofURL, cfg.Feed.Schedule, log)
		if err := poller.Start(); err != nil {
			log.Error("poller start failed", "error", err)
			os.Exit(1)
		}
		defer poller.Stop()
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
