package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/infra"
	"github.com/xela07ax/omnisme/internal/infra/auth"
	"github.com/xela07ax/omnisme/internal/infra/health"
	"github.com/xela07ax/omnisme/internal/notify"
	"github.com/xela07ax/omnisme/internal/portal/handler"
	"github.com/xela07ax/omnisme/internal/portal/server"
	"github.com/xela07ax/omnisme/internal/portal/service"
	"github.com/xela07ax/omnisme/internal/repository/postgres"
)

const (
	healthInterval    = 10 * time.Second
	limiterPruneEvery = time.Minute
	redisProbeTimeout = 2 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP API and the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Инфраструктура: Postgres, Redis, ключи
	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	probeCtx, cancelProbe := context.WithTimeout(ctx, redisProbeTimeout)
	if err := rdb.Ping(probeCtx).Err(); err != nil {
		// Без Redis портал работает: кэш и уведомления деградируют, свип пропускается
		logger.Warn("redis unavailable, continuing degraded", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancelProbe()

	privKey, pubKey, ephemeral, err := auth.LoadKeyPair(cfg.Auth.PrivateKey, cfg.Auth.PublicKey, cfg.Server.IsDevelopment())
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}
	if ephemeral {
		logger.Warn("using ephemeral RSA key pair, issued tokens will not survive a restart")
	}
	signer := auth.NewSigner(privKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	validator := auth.NewBaseValidator(pubKey, cfg.Auth.Issuer)

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := infra.NewMetrics(reg)

	// 3. Фоновые писатели: аудит и уведомления
	auditWriter := audit.NewWriter(store, cfg.Audit, metrics, logger)
	auditWriter.Start()

	var webhook notify.Sender
	if cfg.Notify.WebhookURL != "" {
		webhook = notify.NewReliableSender(
			notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Timeout),
			cfg.Notify, metrics, logger)
	}
	notifier := notify.NewNotifier(rdb, webhook, cfg.Notify, metrics, logger)
	notifier.Start()

	// 4. Бизнес-сервисы
	hasher := service.NewHasher(cfg.Auth.BcryptCost)
	stats := service.NewStatsCache(rdb, cfg.Licenses.StatsCacheTTL, logger)

	authSvc := service.NewAuthService(store, signer, hasher, auditWriter, logger)
	softwareSvc := service.NewSoftwareService(store, stats, auditWriter, logger)
	requestSvc := service.NewRequestService(store, notifier, stats, auditWriter, metrics, logger)
	licenseSvc := service.NewLicenseService(store, stats, auditWriter, logger)
	userSvc := service.NewUserService(store, hasher, stats, auditWriter, logger)
	auditSvc := service.NewAuditService(store)

	sweeper := service.NewExpirySweeper(store, rdb, stats, auditWriter, metrics, cfg.Licenses.ExpirySweepInterval, logger)
	sweeper.Start(ctx)

	limiter := infra.NewIPRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginBurst, logger)
	go limiter.Run(ctx, limiterPruneEvery)

	// 5. HTTP API
	api := server.NewPortalServer(cfg.Server, logger, validator, store, metrics, reg, limiter, server.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, logger),
		Software: handler.NewSoftwareHandler(softwareSvc, logger),
		Requests: handler.NewRequestHandler(requestSvc, logger),
		Licenses: handler.NewLicenseHandler(licenseSvc, logger),
		Users:    handler.NewUserHandler(userSvc, logger),
		Audit:    handler.NewAuditHandler(auditSvc, logger),
		Health:   handler.NewHealthHandler(cfg.Server.Environment),
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// 6. gRPC health для оркестратора
	monitor := health.NewMonitor(store, healthInterval, logger)
	monitor.Start(ctx)
	grpcSrv := grpc.NewServer()
	monitor.Register(grpcSrv)

	errCh := make(chan error, 2)
	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			errCh <- fmt.Errorf("listen grpc: %w", err)
			return
		}
		logger.Info("grpc health server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("portal api started",
			zap.String("addr", httpSrv.Addr),
			zap.String("environment", cfg.Server.Environment))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
	}()

	// 7. Graceful Shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Сначала NOT_SERVING, чтобы балансировщик снял трафик
	monitor.Stop()
	err = multierr.Append(err, httpSrv.Shutdown(shutdownCtx))
	grpcSrv.GracefulStop()

	sweeper.Stop()
	notifier.Stop(shutdownCtx)
	// Аудит последним: сервисы выше еще могли писать события
	auditWriter.Stop()

	if err != nil {
		return err
	}
	logger.Info("portal exited properly")
	return nil
}
