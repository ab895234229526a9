// Command earnhire-server serves the entitlement, reward and migration HTTP API
// plus a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/auth"
	"github.com/and161185/earn-hire/internal/bootstrap"
	"github.com/and161185/earn-hire/internal/config"
	"github.com/and161185/earn-hire/internal/geo"
	"github.com/and161185/earn-hire/internal/limiter"
	"github.com/and161185/earn-hire/internal/localstore"
	redislocal "github.com/and161185/earn-hire/internal/localstore/redis"
	grpcserver "github.com/and161185/earn-hire/internal/server/grpc"
	httpserver "github.com/and161185/earn-hire/internal/server/http"
	"github.com/and161185/earn-hire/internal/service"
	"github.com/and161185/earn-hire/internal/wallet"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// main loads configuration, opens backends and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
		zap.String("limiter", cfg.LimiterStore),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open backends", zap.Error(err))
	}
	defer backends.Close()

	// Repositories
	entRepo, rewRepo, err := backends.Repositories(cfg)
	if err != nil {
		logger.Fatal("repositories", zap.Error(err))
	}

	// Claim limiter
	lc := limiter.DefaultConfig()
	limStore, sweeper, err := backends.LimiterStore(cfg, lc)
	if err != nil {
		logger.Fatal("limiter store", zap.Error(err))
	}
	if sweeper != nil {
		c, err := limiter.StartSweeper(sweeper, cfg.SweepSchedule, logger)
		if err != nil {
			logger.Fatal("limiter sweeper", zap.Error(err))
		}
		defer c.Stop()
	}
	lim := limiter.New(limStore, lc, logger)

	// Anonymous session data
	var sessions httpserver.Sessions
	if backends.Redis != nil {
		sessions = redislocal.NewSessions(backends.Redis, "", cfg.AnonTTL)
	} else {
		logger.Warn("anonymous sessions kept in memory", zap.Int("max_sessions", localstore.DefaultMaxSessions))
		mem := localstore.NewMemorySessions(cfg.AnonTTL, localstore.DefaultMaxSessions)
		c, err := limiter.StartSweeper(mem, cfg.SweepSchedule, logger.Named("sessions"))
		if err != nil {
			logger.Fatal("session sweeper", zap.Error(err))
		}
		defer c.Stop()
		sessions = mem
	}

	// Services
	credits := service.NewCreditService(entRepo, rewRepo, nil)
	rewards := service.NewRewardService(rewRepo, entRepo, nil)
	tokens := auth.NewTokens([]byte(cfg.JWTKey))

	deps := httpserver.Deps{
		Credits:   credits,
		Rewards:   rewards,
		Migration: service.NewMigrationService(entRepo, rewRepo, logger, nil),
		Sessions:  sessions,
		Tokens:    tokens,
		Log:       logger,
		Ping:      backends.Ping,
	}
	if cfg.ClaimRelayURL != "" {
		contract := wallet.NewRelayContract(cfg.ClaimRelayURL, cfg.ClaimRelayToken, 30*time.Second)
		deps.Claims = service.NewClaimService(rewards, lim, contract, logger)
	} else {
		logger.Warn("claim relay not configured; cash-out disabled")
	}
	if cfg.StripeWebhookSecret != "" {
		deps.Billing = service.NewBillingService(credits, cfg.StripeWebhookSecret, logger)
	}
	if cfg.GeoLookup {
		deps.Geo = geo.NewResolver(geo.DefaultProviders(), logger)
	}

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (HTTP)", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpcserver.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		grpcSrv = grpcserver.New(backends.Ping, logger)
		go grpcSrv.Watch(ctx, 15*time.Second)
		go func() {
			logger.Info("listening (gRPC health)", zap.String("addr", cfg.GRPCAddr))
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}

	logger.Info("shutdown complete")
}
