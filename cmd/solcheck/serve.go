package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"solcheck/internal/checker/consumer"
	"solcheck/internal/checker/controller"
	"solcheck/internal/checker/observer"
	"solcheck/internal/checker/service"
	"solcheck/internal/checker/source"
	"solcheck/internal/common/cache"
	"solcheck/internal/common/mq"
	"solcheck/internal/common/ratelimit"
	"solcheck/internal/common/storage"
	"solcheck/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and, when Kafka is configured, the check consumer",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	appCfg, err := loadAppConfig(configPath, false)
	if err != nil {
		return err
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	gin.SetMode(gin.ReleaseMode)

	var (
		metrics        observer.MetricsRecorder
		metricsHandler http.Handler
	)
	if appCfg.Metrics.Enabled {
		recorder := observer.NewPrometheusRecorder()
		metrics = recorder
		metricsHandler = recorder.Handler()
	}

	checkSvc, closeEngine, err := newCheckService(ctx, appCfg, metrics)
	if err != nil {
		logger.Error(ctx, "init check service failed", zap.Error(err))
		return err
	}
	defer closeEngine()

	var loader service.SourceLoader
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return err
		}
		archiveLoader, err := source.NewArchiveLoader(source.Config{
			Storage:         objStorage,
			DefaultBucket:   appCfg.MinIO.Bucket,
			MaxArchiveBytes: appCfg.Source.MaxArchiveBytes,
		})
		if err != nil {
			logger.Error(ctx, "init source loader failed", zap.Error(err))
			return err
		}
		loader = archiveLoader
	}
	intake := service.NewIntake(appCfg.Checker.Limits, loader)

	var limiter *ratelimit.Service
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return err
		}
		defer func() {
			_ = redisCache.Close()
		}()
		limiter = ratelimit.NewService(redisCache, appCfg.RateLimit.Window, 0)
	} else {
		logger.Warn(ctx, "redis is not configured, rate limiting is disabled")
	}
	if len(appCfg.Auth.APIKeys) == 0 {
		logger.Warn(ctx, "no api keys configured, authentication is disabled")
	}

	var checkConsumer *consumer.CheckConsumer
	if len(appCfg.Kafka.Brokers) > 0 {
		mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return err
		}
		defer func() {
			_ = mqClient.Close()
		}()
		checkConsumer, err = consumer.New(consumer.Config{
			Queue:           mqClient,
			Checker:         checkSvc,
			Intake:          intake,
			RequestTopic:    appCfg.Kafka.RequestTopic,
			ResultTopic:     appCfg.Kafka.ResultTopic,
			DeadLetterTopic: appCfg.Kafka.DeadLetterTopic,
			ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
			Concurrency:     appCfg.Kafka.Concurrency,
			MaxRetries:      appCfg.Kafka.MaxRetries,
			RetryDelay:      appCfg.Kafka.RetryDelay,
			InFlight:        mq.NewTokenLimiter(appCfg.Kafka.MaxInFlight),
		})
		if err != nil {
			logger.Error(ctx, "init check consumer failed", zap.Error(err))
			return err
		}
		if err := checkConsumer.Start(ctx); err != nil {
			logger.Error(ctx, "start check consumer failed", zap.Error(err))
			return err
		}
	}

	router := controller.NewRouter(controller.RouterConfig{
		Checks:    controller.NewCheckController(checkSvc, intake, appCfg.Checker.MaxBodyBytes),
		APIKeys:   appCfg.Auth.APIKeys,
		Limiter:   limiter,
		RateLimit: appCfg.RateLimit,
		Metrics:   metricsHandler,
	})
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "solcheck http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
			serveErr = err
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if checkConsumer != nil {
		_ = checkConsumer.Stop()
	}
	return serveErr
}
