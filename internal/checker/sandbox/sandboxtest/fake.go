// Package sandboxtest provides an in-memory sandbox for tests.
package sandboxtest

import (
	"context"
	"errors"
	"sync"

	"solcheck/internal/checker/sandbox"
)

// ErrKilled is returned by Hang once the environment has been killed.
var ErrKilled = errors.New("sandbox killed")

// ExecFunc scripts the behaviour of Exec.
type ExecFunc func(ctx context.Context, env *Environment, cmd sandbox.Command) (sandbox.ExecResult, error)

// Environment is an in-memory sandbox.Environment.
type Environment struct {
	mu sync.Mutex

	id       string
	files    map[string]string
	running  bool
	killed   chan struct{}
	killOnce sync.Once

	OnExec   ExecFunc
	LoadErr  error
	PutErr   error
	GetErr   error
	Commands []sandbox.Command
	Kills    int
	Destroys int
}

// NewEnvironment returns a running environment whose commands succeed with
// empty output until exec is set.
func NewEnvironment(exec ExecFunc) *Environment {
	return &Environment{
		id:      "fake-sandbox",
		files:   make(map[string]string),
		running: true,
		killed:  make(chan struct{}),
		OnExec:  exec,
	}
}

func (e *Environment) ID() string { return e.id }

func (e *Environment) LoadFiles(_ context.Context, files map[string]string) error {
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, content := range files {
		e.files["/root/source/"+name] = content
	}
	return nil
}

func (e *Environment) PutFile(_ context.Context, filePath, content string) error {
	e.mu.Lock()
	putErr := e.PutErr
	e.mu.Unlock()
	if putErr != nil {
		return putErr
	}
	e.SetFile(filePath, content)
	return nil
}

func (e *Environment) GetFile(_ context.Context, filePath string) (string, bool, error) {
	if e.GetErr != nil {
		return "", false, e.GetErr
	}
	return e.File(filePath)
}

func (e *Environment) Exec(ctx context.Context, cmd sandbox.Command) (sandbox.ExecResult, error) {
	e.mu.Lock()
	e.Commands = append(e.Commands, cmd)
	exec := e.OnExec
	e.mu.Unlock()
	if exec == nil {
		return sandbox.ExecResult{}, nil
	}
	return exec(ctx, e, cmd)
}

func (e *Environment) Kill(context.Context) error {
	e.mu.Lock()
	e.Kills++
	e.running = false
	e.mu.Unlock()
	e.killOnce.Do(func() { close(e.killed) })
	return nil
}

func (e *Environment) Running(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running, nil
}

func (e *Environment) Destroy(ctx context.Context) error {
	e.mu.Lock()
	e.Destroys++
	running := e.running
	e.mu.Unlock()
	if running {
		return e.Kill(ctx)
	}
	return nil
}

// Stop marks the environment as exited without going through Kill.
func (e *Environment) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// Hang blocks like a never-ending program until the environment is killed.
func (e *Environment) Hang(ctx context.Context) error {
	select {
	case <-e.killed:
		return ErrKilled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFile writes a file directly, as a program inside the sandbox would.
func (e *Environment) SetFile(filePath, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[filePath] = content
}

// SetPutErr changes the PutFile failure while a check is running.
func (e *Environment) SetPutErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PutErr = err
}

// RemoveFile deletes a file, as `rm -f` inside the sandbox would.
func (e *Environment) RemoveFile(filePath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, filePath)
}

// File reads a file.
func (e *Environment) File(filePath string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, ok := e.files[filePath]
	return content, ok, nil
}

// Manager hands out a fixed environment.
type Manager struct {
	Env       *Environment
	CreateErr error
	Created   int
}

func (m *Manager) Create(context.Context) (sandbox.Environment, error) {
	m.Created++
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	return m.Env, nil
}
