package model

import (
	"errors"
	"path"
	"sort"
	"strings"

	appErr "solcheck/pkg/errors"
)

const (
	// MakefileName is the entry that carries the build contract.
	MakefileName = "Makefile"

	TargetRun   = "run"
	TargetBuild = "build"
)

var (
	ErrMakefileMissing  = errors.New("No Makefile found!")
	ErrRunTargetMissing = errors.New(`Makefile must at least contain "run:"`)
)

// SourceFileSet maps relative file paths to their text content.
type SourceFileSet map[string]string

// Paths returns the file paths in lexical order.
func (s SourceFileSet) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Validate rejects empty sets, absolute paths and parent-directory traversal.
func (s SourceFileSet) Validate() error {
	if len(s) == 0 {
		return appErr.ValidationError("sourceCode", "must contain at least one file")
	}
	for _, p := range s.Paths() {
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath checks that a single source path stays inside the source root.
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return appErr.New(appErr.SourcePathInvalid).WithMessage("source file path is empty")
	}
	normalized := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(normalized, "/") || path.IsAbs(normalized) {
		return appErr.New(appErr.SourcePathInvalid).
			WithMessagef("source file path %q must be relative", p).
			WithDetail("path", p)
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return appErr.New(appErr.SourcePathInvalid).
				WithMessagef("source file path %q must not contain \"..\"", p).
				WithDetail("path", p)
		}
	}
	return nil
}

// BuildContract describes what the Makefile declares.
type BuildContract struct {
	HasBuild bool
	Targets  []string
}

// Contract inspects the Makefile. A missing Makefile or a missing run target
// is reported as ErrMakefileMissing or ErrRunTargetMissing.
func (s SourceFileSet) Contract() (BuildContract, error) {
	makefile, ok := s[MakefileName]
	if !ok {
		return BuildContract{}, ErrMakefileMissing
	}
	targets := MakefileTargets(makefile)
	contract := BuildContract{Targets: targets}
	hasRun := false
	for _, target := range targets {
		switch target {
		case TargetRun:
			hasRun = true
		case TargetBuild:
			contract.HasBuild = true
		}
	}
	if !hasRun {
		return contract, ErrRunTargetMissing
	}
	return contract, nil
}

// MakefileTargets lists the rule targets declared in a Makefile, in order of
// first appearance. Recipe lines, comments and variable assignments are ignored.
func MakefileTargets(content string) []string {
	seen := make(map[string]struct{})
	var targets []string
	for _, line := range strings.Split(content, "\n") {
		if line == "" || strings.HasPrefix(line, "\t") {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		if strings.HasPrefix(line[idx:], ":=") || strings.HasPrefix(line[idx:], "::=") {
			continue
		}
		head := line[:idx]
		if strings.ContainsAny(head, "=") {
			continue
		}
		for _, name := range strings.Fields(head) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			targets = append(targets, name)
		}
	}
	return targets
}
