package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/newsroom-hq/creditledger/internal/config"
	dbRedis "github.com/newsroom-hq/creditledger/internal/db/redis"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/events"
	eventsKafka "github.com/newsroom-hq/creditledger/internal/events/kafka"
	logpkg "github.com/newsroom-hq/creditledger/internal/logger"
	"github.com/newsroom-hq/creditledger/internal/metrics"
	ledgerrepo "github.com/newsroom-hq/creditledger/internal/repository/ledger"
	chiTransport "github.com/newsroom-hq/creditledger/internal/transport/chi"
	balanceuc "github.com/newsroom-hq/creditledger/internal/usecase/balance"
	deductuc "github.com/newsroom-hq/creditledger/internal/usecase/deduct"
	gateuc "github.com/newsroom-hq/creditledger/internal/usecase/gate"
	healthuc "github.com/newsroom-hq/creditledger/internal/usecase/health"
	ingestuc "github.com/newsroom-hq/creditledger/internal/usecase/ingest"
	tenantuc "github.com/newsroom-hq/creditledger/internal/usecase/tenant"
	"github.com/newsroom-hq/creditledger/internal/version"
)

func main() {
	// Local .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting creditledger API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register ledger metrics explicitly (no init())
	metrics.RegisterLedgerMetrics()

	cat := catalog.New(plansFromConfig(cfg.Catalog.Plans), cfg.Catalog.Costs)
	if err := cat.Validate(); err != nil {
		logger.Fatal("Invalid plan catalog", zap.Error(err))
	}

	repo := ledgerrepo.New(store)

	// Event pipeline — optional, enabled by configuring brokers.
	var dispatcher *events.Dispatcher
	if len(cfg.Events.Brokers) > 0 {
		sink := eventsKafka.NewSink(cfg.Events.Brokers, cfg.Events.Topic)
		defer sink.Close()
		dispatcher = events.NewDispatcher(sink, cfg.Events.BufferSize, logger)
		dispatcher.Start()
		defer dispatcher.Stop()
		logger.Info("Event publishing enabled",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	}

	// Pass nil interface (not typed nil pointer!) if events are not configured.
	// Go gotcha: (*events.Dispatcher)(nil) wrapped in an interface != nil.
	var sink deductuc.EventSink
	var eventsChecker healthuc.EventsChecker
	if dispatcher != nil {
		sink = dispatcher
		eventsChecker = dispatcher
	}

	retryBase := time.Duration(cfg.Ledger.RetryBaseMs) * time.Millisecond

	gateSvc := gateuc.New(repo, cat)
	deductSvc := deductuc.New(repo, cat).
		WithEventSink(sink).
		WithRetry(uint(cfg.Ledger.MaxRetries), retryBase).
		WithWarnFraction(cfg.Ledger.WarnFraction)
	balanceSvc := balanceuc.New(repo, cat).
		WithPageMax(cfg.Ledger.HistoryPageMax)
	tenantSvc := tenantuc.New(repo, cat).WithEventSink(sink)
	ingestSvc := ingestuc.New(repo, cat, cfg.Payments.WebhookSecret).
		WithEventSink(sink).
		WithRetry(uint(cfg.Ledger.MaxRetries), retryBase).
		WithWarnFraction(cfg.Ledger.WarnFraction)
	healthSvc := healthuc.New(store, eventsChecker)

	server := chiTransport.NewServer(gateSvc, deductSvc, balanceSvc, tenantSvc, ingestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func plansFromConfig(overrides map[string]config.PlanConfig) []catalog.Plan {
	plans := make([]catalog.Plan, 0, len(overrides))
	for id, p := range overrides {
		plans = append(plans, catalog.Plan{
			ID:                id,
			MonthlyCredits:    p.MonthlyCredits,
			PriceCents:        p.PriceCents,
			MaxJournalists:    p.MaxJournalists,
			MaxArticlesPerDay: p.MaxArticlesPerDay,
		})
	}
	return plans
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
