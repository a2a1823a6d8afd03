package service

import (
	"fmt"
	"path"
	"strings"

	"solcheck/internal/checker/sandbox"

	"github.com/google/shlex"
)

const (
	defaultBuildCommand = "make build"
	defaultRunCommand   = `/bin/bash -c "rm -f {output} && cat {input} | make -s ARGS='{input} {output}' run"`
	defaultIODir        = "/root/io"
	defaultInputFile    = "input.txt"
	defaultOutputFile   = "output.txt"
)

// Commands describes how the build and run targets are invoked.
// {input}, {output} and {source} are replaced before the line is split.
type Commands struct {
	Build      string `yaml:"build"`
	Run        string `yaml:"run"`
	IODir      string `yaml:"ioDir"`
	InputFile  string `yaml:"inputFile"`
	OutputFile string `yaml:"outputFile"`
}

// WithDefaults fills zero values.
func (c Commands) WithDefaults() Commands {
	if c.Build == "" {
		c.Build = defaultBuildCommand
	}
	if c.Run == "" {
		c.Run = defaultRunCommand
	}
	if c.IODir == "" {
		c.IODir = defaultIODir
	}
	if c.InputFile == "" {
		c.InputFile = defaultInputFile
	}
	if c.OutputFile == "" {
		c.OutputFile = defaultOutputFile
	}
	return c
}

// InputPath is the absolute path test stdin is written to.
func (c Commands) InputPath() string {
	return path.Join(c.IODir, c.InputFile)
}

// OutputPath is the absolute path a program may write its answer to.
func (c Commands) OutputPath() string {
	return path.Join(c.IODir, c.OutputFile)
}

func (c Commands) replacer(sourceRoot string) *strings.Replacer {
	return strings.NewReplacer(
		"{input}", c.InputPath(),
		"{output}", c.OutputPath(),
		"{source}", sourceRoot,
	)
}

// BuildCommand returns the build invocation.
func (c Commands) BuildCommand(sourceRoot string) (sandbox.Command, error) {
	args, err := shlex.Split(c.replacer(sourceRoot).Replace(c.Build))
	if err != nil {
		return sandbox.Command{}, fmt.Errorf("parse build command: %w", err)
	}
	if len(args) == 0 {
		return sandbox.Command{}, fmt.Errorf("build command is empty")
	}
	return sandbox.Command{Cmd: args, WorkDir: sourceRoot}, nil
}

// RunCommand returns the per-test invocation. The input and output paths are
// exposed through ARGS, input_path and output_path as well.
func (c Commands) RunCommand(sourceRoot string) (sandbox.Command, error) {
	args, err := shlex.Split(c.replacer(sourceRoot).Replace(c.Run))
	if err != nil {
		return sandbox.Command{}, fmt.Errorf("parse run command: %w", err)
	}
	if len(args) == 0 {
		return sandbox.Command{}, fmt.Errorf("run command is empty")
	}
	in, out := c.InputPath(), c.OutputPath()
	return sandbox.Command{
		Cmd:     args,
		WorkDir: sourceRoot,
		Env: []string{
			"ARGS=" + in + " " + out,
			"input_path=" + in,
			"output_path=" + out,
		},
	}, nil
}

// PrepareIOCommand creates the IO directory.
func (c Commands) PrepareIOCommand() sandbox.Command {
	return sandbox.Command{Cmd: []string{"mkdir", "-p", c.IODir}}
}
