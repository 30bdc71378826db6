// Package main runs the slot-ledger marketplace server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/slotledger/market_layer/internal/app"
	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/httpapi"
	"github.com/slotledger/market_layer/internal/app/identity"
	"github.com/slotledger/market_layer/internal/app/metrics"
	"github.com/slotledger/market_layer/internal/app/observe"
	"github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/internal/app/storage/postgres"
	"github.com/slotledger/market_layer/internal/config"
	"github.com/slotledger/market_layer/internal/middleware"
	"github.com/slotledger/market_layer/pkg/logger"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.NewDefault("server").Fatalf("load config: %v", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "server")

	policy, err := config.LoadPolicyOrDefault(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("load policy: %v", err)
	}

	var db storage.DB
	if cfg.Database.DSN != "" {
		sqlDB, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer sqlDB.Close()
		if err := postgres.Migrate(sqlDB.DB); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		db = postgres.New(sqlDB)
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory store")
	}

	var extraSinks []observe.Sink
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer client.Close()
		extraSinks = append(extraSinks, observe.NewRedisSink(client, cfg.Redis.Channel, log))
		log.WithField("channel", cfg.Redis.Channel).Info("redis observation sink enabled")
	}

	rateAdmin := "admin"
	if len(policy.Admins) > 0 {
		rateAdmin = policy.Admins[0]
	}
	var rateSources []treasury.RateSource
	if cfg.Rates.URL != "" && cfg.Rates.Currency != "" {
		rateSources = append(rateSources, treasury.RateSource{
			Currency: cfg.Rates.Currency,
			URL:      cfg.Rates.URL,
			Path:     cfg.Rates.Path,
			Scale:    cfg.Rates.Scale,
		})
	}

	application, err := app.New(app.Options{
		DB: db,
		Authorizer: identity.NewStatic(policy.Admins, policy.Multisig.Signers,
			policy.Minters),
		Fees: market.FeeSchedule{
			ProtocolBps:      policy.Fees.ProtocolBps,
			ReferrerBps:      policy.Fees.ReferrerBps,
			TreasuryIdentity: policy.Fees.TreasuryIdentity,
		},
		MultisigThreshold: policy.Multisig.Threshold,
		SweepSchedule:     cfg.Market.SweepSchedule,
		RateSources:       rateSources,
		RateInterval:      cfg.Rates.Interval,
		RateAdmin:         rateAdmin,
		ExtraSinks:        extraSinks,
		Log:               log,
	})
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	auth := middleware.NewAuth(cfg.Auth.Secret, log, []string{"/healthz", "/metrics"})
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	handler := metrics.InstrumentHandler(auth.Handler(limiter.Handler(mux)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application shutdown")
	}
}
