package service

import (
	"strings"

	"solcheck/internal/checker/model"
)

// Aggregate merges the stage outcomes into the final result.
//
// A failed build is reported as-is with zero tests passed. Otherwise the test
// status becomes the overall status. Lint never changes the status; when it
// ran and failed, its report is appended to the message. build is nil when
// the Makefile declares no build target, lint is nil when it did not run.
func Aggregate(build *model.BuildResult, tests model.TestsResult, lint *model.LintResult) model.CheckResult {
	if build != nil && build.Status != model.StatusOK {
		return model.CheckResult{
			Status:     build.Status,
			BuildTime:  build.Elapsed,
			Message:    build.Message,
			TestsTotal: tests.TestsTotal,
		}
	}

	res := model.CheckResult{
		Status:      tests.Status,
		TestsTime:   tests.Elapsed,
		TestsPassed: tests.TestsPassed,
		TestsTotal:  tests.TestsTotal,
	}
	if build != nil {
		res.BuildTime = build.Elapsed
	}

	var parts []string
	if tests.Message != "" {
		parts = append(parts, tests.Message)
	}
	if lint != nil {
		res.LintSuccess = lint.Success
		if !lint.Success && lint.Message != "" {
			parts = append(parts, lint.Message)
		}
	}
	res.Message = strings.Join(parts, "\n")
	return res
}
