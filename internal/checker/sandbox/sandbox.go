// Package sandbox provisions single-use isolated environments for checks.
package sandbox

import (
	"context"
	"path"
)

// Command describes one process started inside an environment.
type Command struct {
	Cmd     []string
	WorkDir string
	Env     []string // KEY=VALUE
}

// ExecResult is the outcome of a command that ran to completion.
// Output holds stdout and stderr interleaved as produced.
type ExecResult struct {
	ExitCode  int
	Output    string
	Truncated bool
}

// Environment is one running sandbox, exclusively owned by a single check.
type Environment interface {
	ID() string
	// LoadFiles deposits the file set under the configured source root.
	LoadFiles(ctx context.Context, files map[string]string) error
	PutFile(ctx context.Context, filePath, content string) error
	// GetFile returns ok=false without error when the path does not exist.
	// Files above the output cap fail with ErrFileTooLarge.
	GetFile(ctx context.Context, filePath string) (content string, ok bool, err error)
	Exec(ctx context.Context, cmd Command) (ExecResult, error)
	// Kill forcibly stops the environment. In-flight Exec calls return once it is down.
	Kill(ctx context.Context) error
	Running(ctx context.Context) (bool, error)
	// Destroy kills the environment if needed and removes it. Safe to call repeatedly.
	Destroy(ctx context.Context) error
}

// Manager creates environments.
type Manager interface {
	Create(ctx context.Context) (Environment, error)
}

// Config holds sandbox settings.
type Config struct {
	Image          string `yaml:"image"`
	MemoryBytes    int64  `yaml:"memoryBytes"`
	PidsLimit      int64  `yaml:"pidsLimit"`
	NanoCPUs       int64  `yaml:"nanoCpus"`
	RootDir        string `yaml:"rootDir"`
	SourceDir      string `yaml:"sourceDir"`
	MaxOutputBytes int64  `yaml:"maxOutputBytes"`
	NamePrefix     string `yaml:"namePrefix"`
	PullImage      bool   `yaml:"pullImage"`
}

const (
	defaultImage          = "solcheck/checker:latest"
	defaultMemoryBytes    = 128 << 20
	defaultPidsLimit      = 64
	defaultNanoCPUs       = 1_000_000_000
	defaultRootDir        = "/root"
	defaultSourceDir      = "source"
	defaultMaxOutputBytes = 1 << 20
	defaultNamePrefix     = "solcheck-"
)

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.Image == "" {
		c.Image = defaultImage
	}
	if c.MemoryBytes <= 0 {
		c.MemoryBytes = defaultMemoryBytes
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = defaultPidsLimit
	}
	if c.NanoCPUs <= 0 {
		c.NanoCPUs = defaultNanoCPUs
	}
	if c.RootDir == "" {
		c.RootDir = defaultRootDir
	}
	if c.SourceDir == "" {
		c.SourceDir = defaultSourceDir
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	if c.NamePrefix == "" {
		c.NamePrefix = defaultNamePrefix
	}
	return c
}

// SourceRoot is the absolute directory the source set is loaded into.
func (c Config) SourceRoot() string {
	return path.Join(c.RootDir, c.SourceDir)
}
