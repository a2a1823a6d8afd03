package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"solcheck/internal/checker/lint"
	"solcheck/internal/checker/model"

	"github.com/spf13/cobra"
)

// errLintFindings makes the process exit with status 1 without an extra message.
var errLintFindings = errors.New("lint findings")

var lintExtensions []string

var lintCmd = &cobra.Command{
	Use:   "lint FILE...",
	Short: "Lint local files and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLint,
}

func init() {
	lintCmd.Flags().StringSliceVar(&lintExtensions, "ext", nil, "file extensions to lint (default: the configured list)")
}

func runLint(cmd *cobra.Command, args []string) error {
	extensions := lintExtensions
	if len(extensions) == 0 {
		appCfg, err := loadAppConfig(configPath, true)
		if err != nil {
			return err
		}
		extensions = appCfg.Checker.LintExtensions
	}

	files := make(model.SourceFileSet, len(args))
	for _, name := range args {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(filepath.Clean(name))] = string(data)
	}

	report := lint.Files(files, extensions)
	if report.OK() {
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	return errLintFindings
}
