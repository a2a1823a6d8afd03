package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrPathNotFound is returned by Engine.CopyFromContainer for missing paths.
var ErrPathNotFound = errors.New("path not found in container")

// ErrFileTooLarge is returned by Environment.GetFile when the file exceeds
// the configured output cap.
var ErrFileTooLarge = errors.New("file exceeds the output limit")

// Engine is the subset of the container runtime the manager relies on.
type Engine interface {
	CreateContainer(ctx context.Context, name string, cfg *container.Config, host *container.HostConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	ContainerRunning(ctx context.Context, id string) (bool, error)
	CopyToContainer(ctx context.Context, id, dstDir string, archive io.Reader) error
	CopyFromContainer(ctx context.Context, id, srcPath string) (io.ReadCloser, error)
	// Exec runs cmd to completion, streaming combined output into out.
	Exec(ctx context.Context, id string, cmd Command, out io.Writer) (exitCode int, err error)
	EnsureImage(ctx context.Context, ref string) error
	Close() error
}

// DockerEngine implements Engine on top of the Docker Engine API.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects using the standard DOCKER_* environment variables.
func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (e *DockerEngine) CreateContainer(ctx context.Context, name string, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := e.cli.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *DockerEngine) StartContainer(ctx context.Context, id string) error {
	return e.cli.ContainerStart(ctx, id, container.StartOptions{})
}

// KillContainer sends SIGKILL. A container that is already stopped is not an error.
func (e *DockerEngine) KillContainer(ctx context.Context, id string) error {
	err := e.cli.ContainerKill(ctx, id, "SIGKILL")
	if err == nil || errdefs.IsConflict(err) || errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (e *DockerEngine) RemoveContainer(ctx context.Context, id string) error {
	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (e *DockerEngine) ContainerRunning(ctx context.Context, id string) (bool, error) {
	info, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, nil
	}
	return info.State.Running, nil
}

func (e *DockerEngine) CopyToContainer(ctx context.Context, id, dstDir string, archive io.Reader) error {
	return e.cli.CopyToContainer(ctx, id, dstDir, archive, container.CopyToContainerOptions{})
}

func (e *DockerEngine) CopyFromContainer(ctx context.Context, id, srcPath string) (io.ReadCloser, error) {
	rc, _, err := e.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, ErrPathNotFound
		}
		return nil, err
	}
	return rc, nil
}

func (e *DockerEngine) Exec(ctx context.Context, id string, cmd Command, out io.Writer) (int, error) {
	created, err := e.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd.Cmd,
		WorkingDir:   cmd.WorkDir,
		Env:          cmd.Env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, fmt.Errorf("create exec: %w", err)
	}

	attached, err := e.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return 0, fmt.Errorf("attach exec: %w", err)
	}
	defer attached.Close()
	stop := context.AfterFunc(ctx, attached.Close)
	defer stop()

	// stdout and stderr go to the same writer so the output keeps its original order
	if _, err := stdcopy.StdCopy(out, out, attached.Reader); err != nil {
		return 0, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, fmt.Errorf("inspect exec: %w", err)
	}
	if inspect.Running {
		return 0, fmt.Errorf("exec %s output closed while still running", created.ID)
	}
	return inspect.ExitCode, nil
}

// EnsureImage pulls ref unless it is already present locally.
func (e *DockerEngine) EnsureImage(ctx context.Context, ref string) error {
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// the pull only completes once the progress stream is drained
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (e *DockerEngine) Close() error {
	return e.cli.Close()
}
