package main

import (
	"context"
	"fmt"

	"solcheck/internal/checker/observer"
	"solcheck/internal/checker/sandbox"
	"solcheck/internal/checker/service"
	"solcheck/pkg/utils/logger"

	"go.uber.org/zap"
)

// newCheckService connects to the Docker daemon and builds the check
// service. The returned close func releases the Docker client.
func newCheckService(ctx context.Context, appCfg *AppConfig, metrics observer.MetricsRecorder) (*service.Service, func(), error) {
	eng, err := sandbox.NewDockerEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("init docker engine failed: %w", err)
	}
	closeEngine := func() {
		if err := eng.Close(); err != nil {
			logger.Warn(context.Background(), "close docker engine failed", zap.Error(err))
		}
	}

	manager := sandbox.NewDockerManager(eng, appCfg.Sandbox, metrics)
	if err := manager.Prepare(ctx); err != nil {
		closeEngine()
		return nil, nil, err
	}

	svc, err := service.NewService(service.Config{
		Manager:             manager,
		SourceRoot:          appCfg.Sandbox.SourceRoot(),
		Commands:            appCfg.Checker.Commands,
		LintExtensions:      appCfg.Checker.LintExtensions,
		Metrics:             metrics,
		MaxConcurrentChecks: appCfg.Checker.MaxConcurrentChecks,
		SlotWait:            appCfg.Checker.SlotWait,
	})
	if err != nil {
		closeEngine()
		return nil, nil, fmt.Errorf("init check service failed: %w", err)
	}
	logger.Info(ctx, "check service ready",
		zap.String("image", appCfg.Sandbox.Image),
		zap.Int("max_concurrent_checks", appCfg.Checker.MaxConcurrentChecks),
	)
	return svc, closeEngine, nil
}
