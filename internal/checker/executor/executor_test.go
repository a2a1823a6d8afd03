package executor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"solcheck/internal/checker/executor"
	"solcheck/internal/checker/sandbox"
	"solcheck/internal/checker/sandbox/sandboxtest"
)

var buildCmd = sandbox.Command{Cmd: []string{"make", "build"}, WorkDir: "/root/source"}

func TestRunCompleted(t *testing.T) {
	env := sandboxtest.NewEnvironment(func(context.Context, *sandboxtest.Environment, sandbox.Command) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{ExitCode: 3, Output: "main.c:1: error"}, nil
	})

	out := executor.Run(context.Background(), env, buildCmd, time.Second)
	if out.Kind != executor.Completed {
		t.Fatalf("Kind = %v, want completed (err=%v)", out.Kind, out.Err)
	}
	if out.ExitCode != 3 || out.Output != "main.c:1: error" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if env.Kills != 0 {
		t.Fatalf("completed run must not kill the sandbox, kills = %d", env.Kills)
	}
	if len(env.Commands) != 1 || env.Commands[0].WorkDir != "/root/source" {
		t.Fatalf("commands = %+v", env.Commands)
	}
}

func TestRunTimedOutKillsAndJoins(t *testing.T) {
	var workerReturned atomic.Bool
	env := sandboxtest.NewEnvironment(func(ctx context.Context, env *sandboxtest.Environment, _ sandbox.Command) (sandbox.ExecResult, error) {
		err := env.Hang(ctx)
		time.Sleep(20 * time.Millisecond)
		workerReturned.Store(true)
		return sandbox.ExecResult{}, err
	})

	deadline := 100 * time.Millisecond
	out := executor.Run(context.Background(), env, buildCmd, deadline)

	if out.Kind != executor.TimedOut {
		t.Fatalf("Kind = %v, want timed_out", out.Kind)
	}
	if env.Kills != 1 {
		t.Fatalf("kills = %d, want 1", env.Kills)
	}
	if !workerReturned.Load() {
		t.Fatal("Run returned before the worker exited")
	}
	if out.Elapsed < deadline {
		t.Fatalf("Elapsed = %v, want at least %v", out.Elapsed, deadline)
	}
	if limit := deadline*5/4 + 50*time.Millisecond; out.Elapsed > limit {
		t.Fatalf("Elapsed = %v, want at most %v", out.Elapsed, limit)
	}
}

func TestRunFaultedOnExecError(t *testing.T) {
	cause := errors.New("container is not running")
	env := sandboxtest.NewEnvironment(func(context.Context, *sandboxtest.Environment, sandbox.Command) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{}, cause
	})

	out := executor.Run(context.Background(), env, buildCmd, time.Second)
	if out.Kind != executor.Faulted || !errors.Is(out.Err, cause) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRunFaultedWhenEnvironmentDies(t *testing.T) {
	env := sandboxtest.NewEnvironment(func(_ context.Context, env *sandboxtest.Environment, _ sandbox.Command) (sandbox.ExecResult, error) {
		env.Stop()
		return sandbox.ExecResult{ExitCode: 137}, nil
	})

	out := executor.Run(context.Background(), env, buildCmd, time.Second)
	if out.Kind != executor.Faulted {
		t.Fatalf("Kind = %v, want faulted", out.Kind)
	}
	if !executor.IsEnvironmentGone(out.Err) {
		t.Fatalf("Err = %v, want environment gone", out.Err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	// the program ignores cancellation; only the kill stops it
	env := sandboxtest.NewEnvironment(func(_ context.Context, env *sandboxtest.Environment, _ sandbox.Command) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{}, env.Hang(context.Background())
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := executor.Run(ctx, env, buildCmd, 10*time.Second)
	if out.Kind != executor.Faulted || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if env.Kills != 1 {
		t.Fatalf("kills = %d, want 1", env.Kills)
	}
}
