// Package observer defines metrics hooks for checks and sandboxes.
package observer

import (
	"context"
	"time"
)

// Stage names used by ObserveStage.
const (
	StageBuild = "build"
	StageTest  = "test"
	StageLint  = "lint"
)

// Sandbox lifecycle events used by ObserveSandbox.
const (
	SandboxCreated      = "created"
	SandboxCreateFailed = "create_failed"
	SandboxKilled       = "killed"
	SandboxDestroyed    = "destroyed"
)

// MetricsRecorder records checker metrics.
type MetricsRecorder interface {
	ObserveCheck(ctx context.Context, status string, lintSuccess bool, buildTime, testsTime time.Duration)
	ObserveStage(ctx context.Context, stage string, status string, elapsed time.Duration)
	ObserveSandbox(ctx context.Context, event string)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveCheck(context.Context, string, bool, time.Duration, time.Duration) {}
func (Nop) ObserveStage(context.Context, string, string, time.Duration)              {}
func (Nop) ObserveSandbox(context.Context, string)                                   {}

// OrNop returns r, or a Nop recorder when r is nil.
func OrNop(r MetricsRecorder) MetricsRecorder {
	if r == nil {
		return Nop{}
	}
	return r
}
