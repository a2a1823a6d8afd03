package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"solcheck/internal/checker/executor"
	"solcheck/internal/checker/lint"
	"solcheck/internal/checker/model"
	"solcheck/internal/checker/observer"
	"solcheck/internal/checker/sandbox"
	"solcheck/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	msgInputUnwritable = "Unable to write test input into the sandbox!"
	msgOutputTooLarge  = "Output file is too large!"
)

// stages runs the build, test and lint stages against one environment.
type stages struct {
	buildCmd       sandbox.Command
	runCmd         sandbox.Command
	prepareIOCmd   sandbox.Command
	inputPath      string
	outputPath     string
	lintExtensions []string
	metrics        observer.MetricsRecorder
}

// build runs the build command once. A deadline miss or a dead environment
// is reported as BUILD_TIMEOUT with an empty message.
func (s *stages) build(ctx context.Context, env sandbox.Environment, timeout time.Duration) model.BuildResult {
	out := executor.Run(ctx, env, s.buildCmd, timeout)

	var res model.BuildResult
	switch {
	case out.Kind != executor.Completed:
		if out.Kind == executor.Faulted {
			logger.Warn(ctx, "build call faulted", zap.Error(out.Err))
		}
		res = model.BuildResult{Status: model.StatusBuildTimeout, Elapsed: out.Elapsed}
	case out.ExitCode != 0:
		res = model.BuildResult{Status: model.StatusBuildError, Elapsed: out.Elapsed, Message: out.Output}
	default:
		res = model.BuildResult{Status: model.StatusOK, Elapsed: out.Elapsed}
	}

	s.metrics.ObserveStage(ctx, observer.StageBuild, res.Status.String(), res.Elapsed)
	logger.Info(ctx, "build finished",
		zap.String("status", res.Status.String()),
		zap.Duration("elapsed", res.Elapsed),
		zap.Int("exit_code", out.ExitCode),
	)
	return res
}

// tests runs the suite in order and stops at the first non-OK test.
func (s *stages) tests(ctx context.Context, env sandbox.Environment, suite model.TestSuite, timeout time.Duration) model.TestsResult {
	res := model.TestsResult{Status: model.StatusOK, TestsTotal: len(suite)}
	for i, tc := range suite {
		tr := s.test(ctx, env, tc, timeout)
		res.Elapsed += tr.Elapsed
		s.metrics.ObserveStage(ctx, observer.StageTest, tr.Status.String(), tr.Elapsed)

		if tr.Status != model.StatusOK {
			res.Status = tr.Status
			res.Message = tr.Message
			logger.Info(ctx, "test failed",
				zap.Int("test", i+1),
				zap.String("status", tr.Status.String()),
				zap.Duration("elapsed", tr.Elapsed),
			)
			return res
		}
		res.TestsPassed++
		logger.Debug(ctx, "test passed", zap.Int("test", i+1), zap.Duration("elapsed", tr.Elapsed))
	}
	return res
}

// test runs one test case. The submission owns the sandbox, so it may have
// removed the IO directory: it is recreated every time, and an input that
// still cannot be written fails the test instead of the check.
func (s *stages) test(ctx context.Context, env sandbox.Environment, tc model.TestCase, timeout time.Duration) model.TestResult {
	if _, err := env.Exec(ctx, s.prepareIOCmd); err != nil {
		logger.Warn(ctx, "prepare io directory failed", zap.Error(err))
	}
	if err := env.PutFile(ctx, s.inputPath, tc.Stdin); err != nil {
		logger.Warn(ctx, "write test input failed", zap.Error(err))
		return model.TestResult{Status: model.StatusRuntimeError, Message: msgInputUnwritable}
	}

	out := executor.Run(ctx, env, s.runCmd, timeout)
	switch {
	case out.Kind != executor.Completed:
		if out.Kind == executor.Faulted {
			logger.Warn(ctx, "run call faulted", zap.Error(out.Err))
		}
		return model.TestResult{Status: model.StatusExecutionTimeout, Elapsed: out.Elapsed}
	case out.ExitCode != 0:
		return model.TestResult{Status: model.StatusRuntimeError, Elapsed: out.Elapsed, Message: out.Output}
	}

	answer := out.Output
	content, ok, err := env.GetFile(ctx, s.outputPath)
	switch {
	case errors.Is(err, sandbox.ErrFileTooLarge):
		return model.TestResult{Status: model.StatusTestError, Elapsed: out.Elapsed, Message: msgOutputTooLarge}
	case err != nil:
		logger.Warn(ctx, "read output file failed, using stdout", zap.Error(err))
	case ok:
		answer = content
	}

	answer = NormalizeAnswer(answer, tc.Expected)
	if answer != tc.Expected {
		return model.TestResult{
			Status:  model.StatusTestError,
			Elapsed: out.Elapsed,
			Message: fmt.Sprintf(`For "%s" expected "%s", but got "%s"`, tc.Stdin, tc.Expected, answer),
		}
	}
	return model.TestResult{Status: model.StatusOK, Elapsed: out.Elapsed}
}

// lint runs the lint engine over the original source text.
func (s *stages) lint(ctx context.Context, files model.SourceFileSet) model.LintResult {
	start := time.Now()
	report := lint.Files(files, s.lintExtensions)
	res := model.LintResult{Success: report.OK(), Message: report.String()}

	status := model.StatusOK
	if !res.Success {
		status = model.StatusLintError
	}
	s.metrics.ObserveStage(ctx, observer.StageLint, status.String(), time.Since(start))
	return res
}

// NormalizeAnswer strips exactly one trailing newline from answer when the
// expected output is non-empty and does not end with one. Nothing else is normalized.
func NormalizeAnswer(answer, expected string) string {
	if strings.HasSuffix(answer, "\n") && expected != "" && !strings.HasSuffix(expected, "\n") {
		return answer[:len(answer)-1]
	}
	return answer
}
