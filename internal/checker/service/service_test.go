package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"solcheck/internal/checker/model"
	"solcheck/internal/checker/sandbox"
	"solcheck/internal/checker/sandbox/sandboxtest"
	"solcheck/internal/checker/service"
	appErr "solcheck/pkg/errors"
)

const (
	inputPath  = "/root/io/input.txt"
	outputPath = "/root/io/output.txt"

	// timingSlack covers scheduling delay on loaded CI machines.
	timingSlack = 50 * time.Millisecond
)

// program scripts the fake sandbox: build handles "make build", run handles
// each test invocation and receives the current stdin.
type program struct {
	build func(ctx context.Context, env *sandboxtest.Environment) (sandbox.ExecResult, error)
	run   func(ctx context.Context, env *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error)

	mu   sync.Mutex
	runs int
}

func (p *program) exec(ctx context.Context, env *sandboxtest.Environment, cmd sandbox.Command) (sandbox.ExecResult, error) {
	switch cmd.Cmd[0] {
	case "make":
		if p.build == nil {
			return sandbox.ExecResult{}, nil
		}
		return p.build(ctx, env)
	case "/bin/bash":
		p.mu.Lock()
		p.runs++
		p.mu.Unlock()
		env.RemoveFile(outputPath)
		stdin, _, _ := env.File(inputPath)
		return p.run(ctx, env, stdin)
	default:
		return sandbox.ExecResult{}, nil
	}
}

func (p *program) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// echo prints stdin back with a trailing newline.
func echo(_ context.Context, _ *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{Output: stdin + "\n"}, nil
}

var cleanSource = model.SourceFileSet{
	"Makefile": "build:\n\tgcc main.c\nrun:\n\t./a.out\n",
	"main.py":  "print(input())\n",
}

func newService(t *testing.T, p *program) (*service.Service, *sandboxtest.Manager) {
	t.Helper()
	env := sandboxtest.NewEnvironment(p.exec)
	mgr := &sandboxtest.Manager{Env: env}
	svc, err := service.NewService(service.Config{Manager: mgr})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc, mgr
}

func request(source model.SourceFileSet, tests ...model.TestCase) model.CheckRequest {
	return model.CheckRequest{
		Source:       source,
		Tests:        tests,
		BuildTimeout: time.Second,
		TestTimeout:  200 * time.Millisecond,
	}
}

func TestCheckOK(t *testing.T) {
	p := &program{run: echo}
	svc, mgr := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource,
		model.TestCase{Stdin: "1", Expected: "1"},
		model.TestCase{Stdin: "2", Expected: "2"},
	))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusOK || res.TestsPassed != 2 || res.TestsTotal != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.LintSuccess || res.Message != "" {
		t.Fatalf("expected clean lint, got %+v", res)
	}
	if mgr.Env.Destroys != 1 {
		t.Fatalf("destroys = %d, want 1", mgr.Env.Destroys)
	}
	if content, ok, _ := mgr.Env.File("/root/source/Makefile"); !ok || content != cleanSource["Makefile"] {
		t.Fatal("source was not loaded into the sandbox")
	}
}

func TestCheckContractViolationCreatesNoSandbox(t *testing.T) {
	cases := []struct {
		name   string
		source model.SourceFileSet
		want   string
	}{
		{"no makefile", model.SourceFileSet{"main.c": "int main() {}\n"}, "No Makefile found!"},
		{"no run target", model.SourceFileSet{"Makefile": "build:\n\tgcc main.c\n"}, `Makefile must at least contain "run:"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mgr := newService(t, &program{run: echo})
			res, err := svc.Check(context.Background(), request(tc.source,
				model.TestCase{Stdin: "1", Expected: "1"},
				model.TestCase{Stdin: "2", Expected: "2"},
			))
			if err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if res.Status != model.StatusBuildError || res.Message != tc.want {
				t.Fatalf("unexpected result: %+v", res)
			}
			if res.TestsTotal != 2 || res.TestsPassed != 0 {
				t.Fatalf("unexpected counters: %+v", res)
			}
			if mgr.Created != 0 {
				t.Fatalf("sandbox created %d times", mgr.Created)
			}
		})
	}
}

func TestCheckBuildError(t *testing.T) {
	p := &program{
		build: func(context.Context, *sandboxtest.Environment) (sandbox.ExecResult, error) {
			return sandbox.ExecResult{ExitCode: 2, Output: "main.c:1: error: expected ';'"}, nil
		},
		run: echo,
	}
	svc, _ := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusBuildError || res.Message != "main.c:1: error: expected ';'" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TestsPassed != 0 || res.TestsTotal != 1 || res.LintSuccess {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if p.runCount() != 0 {
		t.Fatalf("tests ran after a failed build")
	}
}

func TestCheckBuildTimeout(t *testing.T) {
	p := &program{
		build: func(ctx context.Context, env *sandboxtest.Environment) (sandbox.ExecResult, error) {
			return sandbox.ExecResult{}, env.Hang(ctx)
		},
		run: echo,
	}
	svc, mgr := newService(t, p)
	req := request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"})
	req.BuildTimeout = 50 * time.Millisecond

	res, err := svc.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusBuildTimeout || res.Message != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if limit := 50*time.Millisecond*5/4 + timingSlack; res.BuildTime < 50*time.Millisecond || res.BuildTime > limit {
		t.Fatalf("BuildTime = %v, want between 50ms and %v", res.BuildTime, limit)
	}
	if mgr.Env.Kills == 0 {
		t.Fatal("sandbox was not killed")
	}
}

func TestCheckWithoutBuildTarget(t *testing.T) {
	p := &program{
		build: func(context.Context, *sandboxtest.Environment) (sandbox.ExecResult, error) {
			return sandbox.ExecResult{ExitCode: 1}, nil
		},
		run: echo,
	}
	svc, _ := newService(t, p)
	source := model.SourceFileSet{"Makefile": "run:\n\tpython3 main.py\n", "main.py": "print(input())\n"}

	res, err := svc.Check(context.Background(), request(source, model.TestCase{Stdin: "x", Expected: "x"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusOK || res.BuildTime != 0 {
		t.Fatalf("build must be skipped, got %+v", res)
	}
}

func TestCheckRuntimeError(t *testing.T) {
	p := &program{run: func(context.Context, *sandboxtest.Environment, string) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{ExitCode: 139, Output: "Segmentation fault"}, nil
	}}
	svc, _ := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource,
		model.TestCase{Stdin: "1", Expected: "1"},
		model.TestCase{Stdin: "2", Expected: "2"},
	))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusRuntimeError || res.Message != "Segmentation fault" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TestsPassed != 0 || res.LintSuccess || p.runCount() != 1 {
		t.Fatalf("unexpected counters: %+v runs=%d", res, p.runCount())
	}
}

func TestCheckExecutionTimeout(t *testing.T) {
	p := &program{run: func(ctx context.Context, env *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		if stdin == "loop" {
			return sandbox.ExecResult{}, env.Hang(ctx)
		}
		return echo(ctx, env, stdin)
	}}
	svc, mgr := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource,
		model.TestCase{Stdin: "1", Expected: "1"},
		model.TestCase{Stdin: "loop", Expected: "done"},
		model.TestCase{Stdin: "3", Expected: "3"},
	))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusExecutionTimeout || res.Message != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TestsPassed != 1 || res.TestsTotal != 3 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if p.runCount() != 2 {
		t.Fatalf("runs = %d, want 2", p.runCount())
	}
	if limit := 200*time.Millisecond*5/4 + timingSlack; res.TestsTime > limit {
		t.Fatalf("TestsTime = %v, want at most %v", res.TestsTime, limit)
	}
	if mgr.Env.Kills == 0 {
		t.Fatal("sandbox was not killed")
	}
}

func TestCheckStopsAtFirstMismatch(t *testing.T) {
	p := &program{run: func(_ context.Context, _ *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		if stdin == "2 2" {
			return sandbox.ExecResult{Output: "5\n"}, nil
		}
		return sandbox.ExecResult{Output: "ok\n"}, nil
	}}
	svc, _ := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource,
		model.TestCase{Stdin: "1 1", Expected: "ok"},
		model.TestCase{Stdin: "2 2", Expected: "4"},
		model.TestCase{Stdin: "3 3", Expected: "ok"},
	))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusTestError || res.TestsPassed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := `For "2 2" expected "4", but got "5"`
	if res.Message != want {
		t.Fatalf("Message = %q, want %q", res.Message, want)
	}
	if p.runCount() != 2 {
		t.Fatalf("runs = %d, want 2", p.runCount())
	}
	if res.LintSuccess {
		t.Fatal("lint must not run after a failed test")
	}
}

func TestCheckPrefersOutputFile(t *testing.T) {
	p := &program{run: func(_ context.Context, env *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		env.SetFile(outputPath, "from file")
		return sandbox.ExecResult{Output: "from stdout\n"}, nil
	}}
	svc, _ := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "", Expected: "from file"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckTrailingNewlineRule(t *testing.T) {
	p := &program{run: func(_ context.Context, _ *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		return sandbox.ExecResult{Output: "\n"}, nil
	}}
	svc, _ := newService(t, p)

	// an empty expected answer keeps the newline
	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "", Expected: ""}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusTestError {
		t.Fatalf("Status = %v, want TEST_ERROR", res.Status)
	}
	if res.Message != "For \"\" expected \"\", but got \"\n\"" {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestCheckLintReportAppended(t *testing.T) {
	p := &program{run: echo}
	svc, _ := newService(t, p)
	source := model.SourceFileSet{
		"Makefile": "build:\n\tgcc main.c\nrun:\n\t./a.out\n",
		"main.c":   "int main() {}",
	}

	res, err := svc.Check(context.Background(), request(source, model.TestCase{Stdin: "1", Expected: "1"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusOK || res.LintSuccess {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Message != "--- main.c:\n* Line 1: line/noendnewline\n" {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestCheckWritesInputFile(t *testing.T) {
	p := &program{run: echo}
	svc, mgr := newService(t, p)

	if _, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "hello", Expected: "hello"})); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if content, ok, _ := mgr.Env.File(inputPath); !ok || content != "hello" {
		t.Fatalf("input file = %q (present=%v)", content, ok)
	}
	var sawMkdir bool
	for _, cmd := range mgr.Env.Commands {
		if cmd.Cmd[0] == "mkdir" {
			sawMkdir = true
		}
	}
	if !sawMkdir {
		t.Fatal("io directory was not prepared")
	}
}

func TestCheckCreateFailure(t *testing.T) {
	svc, mgr := newService(t, &program{run: echo})
	mgr.CreateErr = appErr.New(appErr.SandboxCreateFailed)

	_, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if !appErr.Is(err, appErr.SandboxCreateFailed) {
		t.Fatalf("expected SandboxCreateFailed, got %v", err)
	}
}

func TestCheckLoadFailureDestroysSandbox(t *testing.T) {
	svc, mgr := newService(t, &program{run: echo})
	mgr.Env.LoadErr = appErr.New(appErr.SandboxFilesystemFailed)

	_, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if !appErr.Is(err, appErr.SandboxFilesystemFailed) {
		t.Fatalf("expected SandboxFilesystemFailed, got %v", err)
	}
	if mgr.Env.Destroys != 1 {
		t.Fatalf("destroys = %d, want 1", mgr.Env.Destroys)
	}
}

func TestCheckPutFailure(t *testing.T) {
	p := &program{run: echo}
	svc, mgr := newService(t, p)
	mgr.Env.PutErr = errors.New("disk full")

	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusRuntimeError || res.TestsPassed != 0 || res.TestsTotal != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if p.runCount() != 0 {
		t.Fatal("test ran without its input")
	}
	if mgr.Env.Destroys != 1 {
		t.Fatalf("destroys = %d, want 1", mgr.Env.Destroys)
	}
}

func TestCheckSubmissionRemovesIODir(t *testing.T) {
	p := &program{run: func(ctx context.Context, env *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		env.RemoveFile(inputPath)
		env.SetPutErr(errors.New("no such directory"))
		return echo(ctx, env, stdin)
	}}
	svc, mgr := newService(t, p)

	res, err := svc.Check(context.Background(), request(cleanSource,
		model.TestCase{Stdin: "1", Expected: "1"},
		model.TestCase{Stdin: "2", Expected: "2"},
	))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusRuntimeError || res.TestsPassed != 1 || res.TestsTotal != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Message, "Unable to write test input") {
		t.Fatalf("message = %q", res.Message)
	}

	var mkdirs int
	for _, cmd := range mgr.Env.Commands {
		if cmd.Cmd[0] == "mkdir" {
			mkdirs++
		}
	}
	if mkdirs != 2 {
		t.Fatalf("io directory prepared %d times, want once per test", mkdirs)
	}
	if mgr.Env.Destroys != 1 {
		t.Fatalf("destroys = %d, want 1", mgr.Env.Destroys)
	}
}

func TestCheckOutputFileTooLarge(t *testing.T) {
	p := &program{run: echo}
	svc, mgr := newService(t, p)
	mgr.Env.GetErr = appErr.Wrap(sandbox.ErrFileTooLarge, appErr.SandboxFilesystemFailed)

	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusTestError || res.TestsPassed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.Message, "Output file is too large") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestCheckOutputFileReadFailureFallsBackToStdout(t *testing.T) {
	p := &program{run: echo}
	svc, mgr := newService(t, p)
	mgr.Env.GetErr = errors.New("copy failed")

	res, err := svc.Check(context.Background(), request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"}))
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if res.Status != model.StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckRejectsInvalidRequest(t *testing.T) {
	svc, mgr := newService(t, &program{run: echo})
	req := request(cleanSource)
	req.TestTimeout = 0

	if _, err := svc.Check(context.Background(), req); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if mgr.Created != 0 {
		t.Fatal("sandbox created for an invalid request")
	}
}

func TestCheckQueueFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &program{run: func(_ context.Context, _ *sandboxtest.Environment, stdin string) (sandbox.ExecResult, error) {
		once.Do(func() { close(started) })
		<-release
		return sandbox.ExecResult{Output: stdin}, nil
	}}
	env := sandboxtest.NewEnvironment(p.exec)
	svc, err := service.NewService(service.Config{
		Manager:             &sandboxtest.Manager{Env: env},
		MaxConcurrentChecks: 1,
		SlotWait:            20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	req := request(cleanSource, model.TestCase{Stdin: "1", Expected: "1"})
	req.TestTimeout = 5 * time.Second
	done := make(chan error, 1)
	go func() {
		_, err := svc.Check(context.Background(), req)
		done <- err
	}()
	<-started

	_, err = svc.Check(context.Background(), req)
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected JudgeQueueFull, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first check error: %v", err)
	}
}

func TestLint(t *testing.T) {
	svc, _ := newService(t, &program{run: echo})
	report := svc.Lint(model.SourceFileSet{"a.c": "int x;\n", "b.c": "int f(int a,int b);\n"})
	if report.OK() {
		t.Fatal("expected findings")
	}
	if got := report.String(); got != "--- b.c:\n* Line 1: spaces/punctuation\n" {
		t.Fatalf("String() = %q", got)
	}
}
