// Package executor runs one blocking sandbox command under a wall-clock deadline.
//
// The judged program cannot be cancelled cooperatively. When the deadline
// passes the whole environment is killed, and Run waits for the worker to
// observe the kill before returning, so no worker outlives its call.
package executor

import (
	"context"
	"time"

	"solcheck/internal/checker/sandbox"
	"solcheck/pkg/utils/logger"

	"go.uber.org/zap"
)

// Kind tells how a bounded call ended.
type Kind int

const (
	// Completed means the command ran to completion and the environment is still alive.
	Completed Kind = iota
	// TimedOut means the deadline passed and the environment was killed.
	TimedOut
	// Faulted means the call failed or the environment died underneath it.
	Faulted
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Outcome is the result of one bounded call. ExitCode and Output are only
// meaningful for Completed; Err is set for Faulted.
type Outcome struct {
	Kind     Kind
	ExitCode int
	Output   string
	Elapsed  time.Duration
	Err      error
}

type workerResult struct {
	res sandbox.ExecResult
	err error
}

// Run executes cmd in env and waits at most deadline for it.
// Elapsed covers the whole call, including the forced kill and the join.
func Run(ctx context.Context, env sandbox.Environment, cmd sandbox.Command, deadline time.Duration) Outcome {
	start := time.Now()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	done := make(chan workerResult, 1)
	go func() {
		res, err := env.Exec(workerCtx, cmd)
		if err == nil {
			// a command can return normally because its container went away
			running, rerr := env.Running(context.WithoutCancel(workerCtx))
			switch {
			case rerr != nil:
				err = rerr
			case !running:
				err = errEnvironmentGone
			}
		}
		done <- workerResult{res: res, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return Outcome{Kind: Faulted, Elapsed: time.Since(start), Err: r.err}
		}
		return Outcome{Kind: Completed, ExitCode: r.res.ExitCode, Output: r.res.Output, Elapsed: time.Since(start)}

	case <-timer.C:
		logger.Warn(ctx, "deadline exceeded, killing sandbox",
			zap.String("container", env.ID()),
			zap.Duration("deadline", deadline),
		)
		forceStop(ctx, env, cancelWorker)
		<-done
		return Outcome{Kind: TimedOut, Elapsed: time.Since(start)}

	case <-ctx.Done():
		forceStop(ctx, env, cancelWorker)
		<-done
		return Outcome{Kind: Faulted, Elapsed: time.Since(start), Err: ctx.Err()}
	}
}

// forceStop kills env. If the kill itself fails the worker's call is
// cancelled instead, so the caller can still join it.
func forceStop(ctx context.Context, env sandbox.Environment, cancelWorker context.CancelFunc) {
	if err := env.Kill(context.WithoutCancel(ctx)); err != nil {
		logger.Error(ctx, "kill sandbox failed", zap.String("container", env.ID()), zap.Error(err))
		cancelWorker()
	}
}
