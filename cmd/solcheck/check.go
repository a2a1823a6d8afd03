package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"solcheck/internal/checker/model"
	"solcheck/internal/checker/service"
	"solcheck/internal/checker/source"
	"solcheck/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var checkFlags struct {
	dir          string
	tests        string
	buildTimeout float64
	testTimeout  float64
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one check against the local Docker daemon and print the result as JSON",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	flags := checkCmd.Flags()
	flags.StringVar(&checkFlags.dir, "dir", ".", "directory holding the source set")
	flags.StringVar(&checkFlags.tests, "tests", "", "JSON file with [[stdin, expected], ...] test pairs")
	flags.Float64Var(&checkFlags.buildTimeout, "build-timeout", 0, "build timeout in seconds (0 selects the default)")
	flags.Float64Var(&checkFlags.testTimeout, "test-timeout", 0, "per-test timeout in seconds (0 selects the default)")
	_ = checkCmd.MarkFlagRequired("tests")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	appCfg, err := loadAppConfig(configPath, true)
	if err != nil {
		return err
	}
	if appCfg.Logger.OutputPath == "" {
		// stdout carries the result
		appCfg.Logger.OutputPath = "stderr"
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	data, err := os.ReadFile(checkFlags.tests)
	if err != nil {
		return fmt.Errorf("read tests failed: %w", err)
	}
	var tests model.TestSuite
	if err := json.Unmarshal(data, &tests); err != nil {
		return fmt.Errorf("parse tests failed: %w", err)
	}
	files, err := source.LoadDir(checkFlags.dir, appCfg.Source.MaxArchiveBytes)
	if err != nil {
		return err
	}

	payload := service.CheckPayload{
		CheckID:    "local-" + uuid.NewString(),
		SourceCode: files,
		Tests:      tests,
	}
	if cmd.Flags().Changed("build-timeout") {
		payload.BuildTimeout = &checkFlags.buildTimeout
	}
	if cmd.Flags().Changed("test-timeout") {
		payload.TestTimeout = &checkFlags.testTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, err := service.NewIntake(appCfg.Checker.Limits, nil).Request(ctx, payload)
	if err != nil {
		return err
	}
	checkSvc, closeEngine, err := newCheckService(ctx, appCfg, nil)
	if err != nil {
		return err
	}
	defer closeEngine()

	result, err := checkSvc.Check(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
