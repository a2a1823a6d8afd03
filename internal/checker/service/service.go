package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solcheck/internal/checker/lint"
	"solcheck/internal/checker/model"
	"solcheck/internal/checker/observer"
	"solcheck/internal/checker/sandbox"
	"solcheck/internal/common/mq"
	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/contextkey"
	"solcheck/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSlotWait = 2 * time.Second

// Service runs checks. Each check owns one sandbox for its whole lifetime.
type Service struct {
	manager        sandbox.Manager
	stages         *stages
	lintExtensions []string
	metrics        observer.MetricsRecorder
	slots          *mq.TokenLimiter
	slotWait       time.Duration
}

// Config holds service dependencies and settings.
type Config struct {
	Manager sandbox.Manager
	// SourceRoot is where the manager loads the source set inside the sandbox.
	SourceRoot          string
	Commands            Commands
	LintExtensions      []string
	Metrics             observer.MetricsRecorder
	MaxConcurrentChecks int
	SlotWait            time.Duration
}

// NewService creates a new check service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("sandbox manager is required")
	}
	if cfg.SourceRoot == "" {
		cfg.SourceRoot = sandbox.DefaultConfig().SourceRoot()
	}
	commands := cfg.Commands.WithDefaults()
	buildCmd, err := commands.BuildCommand(cfg.SourceRoot)
	if err != nil {
		return nil, err
	}
	runCmd, err := commands.RunCommand(cfg.SourceRoot)
	if err != nil {
		return nil, err
	}
	extensions := cfg.LintExtensions
	if len(extensions) == 0 {
		extensions = lint.DefaultExtensions
	}
	slotWait := cfg.SlotWait
	if slotWait <= 0 {
		slotWait = defaultSlotWait
	}
	poolSize := cfg.MaxConcurrentChecks
	if poolSize <= 0 {
		poolSize = 1
	}
	metrics := observer.OrNop(cfg.Metrics)

	return &Service{
		manager: cfg.Manager,
		stages: &stages{
			buildCmd:       buildCmd,
			runCmd:         runCmd,
			prepareIOCmd:   commands.PrepareIOCommand(),
			inputPath:      commands.InputPath(),
			outputPath:     commands.OutputPath(),
			lintExtensions: extensions,
			metrics:        metrics,
		},
		lintExtensions: extensions,
		metrics:        metrics,
		slots:          mq.NewTokenLimiter(poolSize),
		slotWait:       slotWait,
	}, nil
}

// Check runs one check. Only setup failures are returned as errors: an
// invalid request, no free slot, or a sandbox that cannot be created or
// loaded. Everything that happens inside the sandbox ends up in the result.
func (s *Service) Check(ctx context.Context, req model.CheckRequest) (model.CheckResult, error) {
	if err := req.Validate(); err != nil {
		return model.CheckResult{}, err
	}
	if req.CheckID == "" {
		req.CheckID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, contextkey.CheckID, req.CheckID)

	contract, err := req.Source.Contract()
	if err != nil {
		if errors.Is(err, model.ErrMakefileMissing) || errors.Is(err, model.ErrRunTargetMissing) {
			logger.Info(ctx, "build contract rejected", zap.String("reason", err.Error()))
			res := model.CheckResult{
				Status:     model.StatusBuildError,
				Message:    err.Error(),
				TestsTotal: len(req.Tests),
			}
			s.metrics.ObserveCheck(ctx, res.Status.String(), res.LintSuccess, 0, 0)
			return res, nil
		}
		return model.CheckResult{}, err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return model.CheckResult{}, err
	}
	defer s.slots.Release()

	env, err := s.manager.Create(ctx)
	if err != nil {
		logger.Error(ctx, "create sandbox failed", zap.Error(err))
		return model.CheckResult{}, err
	}
	defer func() {
		if err := env.Destroy(ctx); err != nil {
			logger.Warn(ctx, "destroy sandbox failed", zap.String("container", env.ID()), zap.Error(err))
		}
	}()

	if err := env.LoadFiles(ctx, req.Source); err != nil {
		logger.Error(ctx, "load source into sandbox failed", zap.String("container", env.ID()), zap.Error(err))
		return model.CheckResult{}, err
	}

	res := s.run(ctx, env, req, contract)

	s.metrics.ObserveCheck(ctx, res.Status.String(), res.LintSuccess, res.BuildTime, res.TestsTime)
	logger.Info(ctx, "check finished",
		zap.String("status", res.Status.String()),
		zap.Int("tests_passed", res.TestsPassed),
		zap.Int("tests_total", res.TestsTotal),
		zap.Bool("lint_success", res.LintSuccess),
		zap.Duration("build_time", res.BuildTime),
		zap.Duration("tests_time", res.TestsTime),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, env sandbox.Environment, req model.CheckRequest, contract model.BuildContract) model.CheckResult {
	var build *model.BuildResult
	if contract.HasBuild {
		b := s.stages.build(ctx, env, req.BuildTimeout)
		build = &b
		if b.Status != model.StatusOK {
			return Aggregate(build, model.TestsResult{TestsTotal: len(req.Tests)}, nil)
		}
	}

	tests := s.stages.tests(ctx, env, req.Tests, req.TestTimeout)

	var lintRes *model.LintResult
	if tests.Status == model.StatusOK {
		l := s.stages.lint(ctx, req.Source)
		lintRes = &l
	}
	return Aggregate(build, tests, lintRes)
}

// Lint runs only the lint engine over files.
func (s *Service) Lint(files model.SourceFileSet) lint.Report {
	return lint.Files(files, s.lintExtensions)
}

func (s *Service) acquireSlot(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.slotWait)
	defer cancel()
	if err := s.slots.Acquire(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return appErr.New(appErr.JudgeQueueFull).WithMessage("all check slots are busy")
	}
	return nil
}
