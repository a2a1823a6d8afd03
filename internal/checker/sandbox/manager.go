package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"solcheck/internal/checker/observer"
	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerManager creates one container per check.
type DockerManager struct {
	engine  Engine
	cfg     Config
	metrics observer.MetricsRecorder
}

// NewDockerManager creates a manager over engine.
func NewDockerManager(engine Engine, cfg Config, metrics observer.MetricsRecorder) *DockerManager {
	return &DockerManager{
		engine:  engine,
		cfg:     cfg.WithDefaults(),
		metrics: observer.OrNop(metrics),
	}
}

// Prepare makes sure the judging image is available when pulling is enabled.
func (m *DockerManager) Prepare(ctx context.Context) error {
	if !m.cfg.PullImage {
		return nil
	}
	if err := m.engine.EnsureImage(ctx, m.cfg.Image); err != nil {
		return appErr.Wrapf(err, appErr.SandboxImageUnavailable, "sandbox image %s is unavailable", m.cfg.Image)
	}
	return nil
}

// Create starts a kept-alive, network-less, memory-capped container.
func (m *DockerManager) Create(ctx context.Context) (Environment, error) {
	name := m.cfg.NamePrefix + uuid.NewString()
	pids := m.cfg.PidsLimit

	id, err := m.engine.CreateContainer(ctx, name, &container.Config{
		Image:           m.cfg.Image,
		Cmd:             []string{"sleep", "infinity"},
		Tty:             true,
		OpenStdin:       true,
		NetworkDisabled: true,
		WorkingDir:      m.cfg.RootDir,
		Labels:          map[string]string{"app": "solcheck"},
	}, &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:     m.cfg.MemoryBytes,
			MemorySwap: m.cfg.MemoryBytes,
			NanoCPUs:   m.cfg.NanoCPUs,
			PidsLimit:  &pids,
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
	})
	if err != nil {
		m.metrics.ObserveSandbox(ctx, observer.SandboxCreateFailed)
		return nil, appErr.Wrap(err, appErr.SandboxCreateFailed)
	}

	env := &dockerEnvironment{id: id, name: name, engine: m.engine, cfg: m.cfg, metrics: m.metrics}
	if err := m.engine.StartContainer(ctx, id); err != nil {
		m.metrics.ObserveSandbox(ctx, observer.SandboxCreateFailed)
		if rmErr := m.engine.RemoveContainer(context.WithoutCancel(ctx), id); rmErr != nil {
			logger.Warn(ctx, "remove unstarted sandbox failed", zap.String("container", id), zap.Error(rmErr))
		}
		return nil, appErr.Wrap(err, appErr.SandboxCreateFailed)
	}

	m.metrics.ObserveSandbox(ctx, observer.SandboxCreated)
	logger.Info(ctx, "sandbox created", zap.String("container", id), zap.String("name", name))
	return env, nil
}

type dockerEnvironment struct {
	id      string
	name    string
	engine  Engine
	cfg     Config
	metrics observer.MetricsRecorder

	destroyOnce sync.Once
	destroyErr  error
}

func (e *dockerEnvironment) ID() string {
	return e.id
}

func (e *dockerEnvironment) LoadFiles(ctx context.Context, files map[string]string) error {
	archive, err := packFiles(files, e.cfg.SourceDir)
	if err != nil {
		return appErr.Wrap(err, appErr.SourceArchiveInvalid)
	}
	if err := e.engine.CopyToContainer(ctx, e.id, e.cfg.RootDir, archive); err != nil {
		return appErr.Wrap(err, appErr.SandboxFilesystemFailed)
	}
	return nil
}

func (e *dockerEnvironment) PutFile(ctx context.Context, filePath, content string) error {
	dir, name := path.Split(filePath)
	if name == "" || !path.IsAbs(filePath) {
		return appErr.Newf(appErr.SandboxFilesystemFailed, "sandbox file path %q must be absolute", filePath)
	}
	archive, err := packFiles(map[string]string{name: content}, "")
	if err != nil {
		return appErr.Wrap(err, appErr.SandboxFilesystemFailed)
	}
	if dir != "/" {
		dir = strings.TrimSuffix(dir, "/")
	}
	if err := e.engine.CopyToContainer(ctx, e.id, dir, archive); err != nil {
		return appErr.Wrapf(err, appErr.SandboxFilesystemFailed, "put %s into sandbox failed", filePath)
	}
	return nil
}

func (e *dockerEnvironment) GetFile(ctx context.Context, filePath string) (string, bool, error) {
	rc, err := e.engine.CopyFromContainer(ctx, e.id, filePath)
	if errors.Is(err, ErrPathNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.SandboxFilesystemFailed, "get %s from sandbox failed", filePath)
	}
	defer rc.Close()

	content, ok, err := unpackSingleFile(rc, e.cfg.MaxOutputBytes)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.SandboxFilesystemFailed, "unpack %s failed", filePath)
	}
	return content, ok, nil
}

func (e *dockerEnvironment) Exec(ctx context.Context, cmd Command) (ExecResult, error) {
	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, remaining: e.cfg.MaxOutputBytes}
	exitCode, err := e.engine.Exec(ctx, e.id, cmd, out)
	if err != nil {
		return ExecResult{}, appErr.Wrap(err, appErr.SandboxExecFailed)
	}
	return ExecResult{ExitCode: exitCode, Output: buf.String(), Truncated: out.truncated}, nil
}

func (e *dockerEnvironment) Kill(ctx context.Context) error {
	if err := e.engine.KillContainer(ctx, e.id); err != nil {
		return fmt.Errorf("kill sandbox %s: %w", e.id, err)
	}
	e.metrics.ObserveSandbox(ctx, observer.SandboxKilled)
	return nil
}

func (e *dockerEnvironment) Running(ctx context.Context) (bool, error) {
	return e.engine.ContainerRunning(ctx, e.id)
}

// Destroy removes the container even when ctx is already cancelled.
func (e *dockerEnvironment) Destroy(ctx context.Context) error {
	e.destroyOnce.Do(func() {
		ctx = context.WithoutCancel(ctx)
		running, err := e.engine.ContainerRunning(ctx, e.id)
		if err == nil && running {
			if err := e.engine.KillContainer(ctx, e.id); err != nil {
				logger.Warn(ctx, "kill sandbox before removal failed", zap.String("container", e.id), zap.Error(err))
			}
		}
		if err := e.engine.RemoveContainer(ctx, e.id); err != nil {
			e.destroyErr = fmt.Errorf("remove sandbox %s: %w", e.id, err)
			return
		}
		e.metrics.ObserveSandbox(ctx, observer.SandboxDestroyed)
		logger.Info(ctx, "sandbox destroyed", zap.String("container", e.id))
	})
	return e.destroyErr
}

// limitedWriter keeps the first remaining bytes and silently drops the rest.
type limitedWriter struct {
	w         *bytes.Buffer
	remaining int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		if n > 0 {
			lw.truncated = true
		}
		return n, nil
	}
	if int64(len(p)) > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	written, _ := lw.w.Write(p)
	lw.remaining -= int64(written)
	return n, nil
}
