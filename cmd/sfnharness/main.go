// Package main provides the sfnharness CLI for testing a locally-run Step
// Functions workflow end to end.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tcmartin/sfnharness/pkg/client"
	"github.com/tcmartin/sfnharness/pkg/config"
	"github.com/tcmartin/sfnharness/pkg/logging"
	"github.com/tcmartin/sfnharness/pkg/orchestrator"
	"github.com/tcmartin/sfnharness/pkg/runner"
	"github.com/tcmartin/sfnharness/pkg/validator"
)

var (
	// Global flags
	configPath    string
	scenariosPath string
	outputPath    string
	verbose       bool
)

// defaultDefinition is the three-state workflow in Amazon States Language.
// The ${...FunctionArn} placeholders are replaced at creation time.
const defaultDefinition = `{
  "Comment": "Three-state workflow passing data from State1 through State3",
  "StartAt": "State1",
  "States": {
    "State1": {
      "Type": "Task",
      "Resource": "${State1FunctionArn}",
      "Next": "State2"
    },
    "State2": {
      "Type": "Task",
      "Resource": "${State2FunctionArn}",
      "Next": "State3"
    },
    "State3": {
      "Type": "Task",
      "Resource": "${State3FunctionArn}",
      "End": true
    }
  }
}`

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "sfnharness",
		Short:         "Step Functions Local workflow test harness",
		Long:          "Runs end-to-end tests against a locally-run Step Functions state machine and validates the data flow between its states",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (JSON)")
	rootCmd.PersistentFlags().StringVar(&scenariosPath, "scenarios", "", "Path to a scenarios file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "Path to write the report to")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the complete integration test suite",
		Long:  "Runs environment diagnostics, connectivity checks, all test scenarios, data flow verification, CI compatibility checks and performance analysis",
		RunE:  runSuite,
	}

	var testName string
	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Run workflow test scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(testName)
		},
	}
	testCmd.Flags().StringVar(&testName, "name", "", "Run only the scenario with this name")

	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run a quick connectivity and health check",
		RunE:  runSmoke,
	}

	var (
		definitionPath string
		machineName    string
		roleARN        string
		functionARNs   []string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the workflow state machine on the local emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createStateMachine(definitionPath, machineName, roleARN, functionARNs)
		},
	}
	createCmd.Flags().StringVar(&definitionPath, "definition", "", "Path to a states-language definition (defaults to the built-in three-state workflow)")
	createCmd.Flags().StringVar(&machineName, "name", "WorkflowStateMachine", "State machine name")
	createCmd.Flags().StringVar(&roleARN, "role-arn", "arn:aws:iam::123456789012:role/DummyRole", "Execution role ARN")
	createCmd.Flags().StringArrayVar(&functionARNs, "function-arn", nil, "Lambda ARN substitutions as Placeholder=arn (repeatable)")

	rootCmd.AddCommand(runCmd, testCmd, smokeCmd, createCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by all commands.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if scenariosPath != "" {
		scenarios, err := config.LoadScenarios(scenariosPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load scenarios: %w", err)
		}
		cfg.Scenarios = scenarios
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, logger, closer, nil
}

// runSuite executes the six-phase integration test and writes the report.
func runSuite(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	result := orchestrator.New(cfg, logger).Run()
	report := orchestrator.GenerateReport(result)

	path := outputPath
	if path == "" {
		path = "integration_test_report.json"
	}
	if err := writeJSONFile(path, report); err != nil {
		return err
	}
	logger.Info("integration test report saved", "path", path)

	if !result.OverallSuccess() {
		return fmt.Errorf("integration test suite failed: %d of %d scenarios failed, %d errors",
			result.FailedScenarios, result.TotalScenarios, len(result.Errors))
	}
	fmt.Println("Integration test suite passed")
	return nil
}

// runTests executes all scenarios, or a single named one, and writes the
// batch report.
func runTests(testName string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	r := runner.NewRunner(cfg, logger)

	if testName != "" {
		scenario, err := findScenario(r, testName)
		if err != nil {
			return err
		}
		result, err := r.RunSingleTest(scenario.Name, scenario.Input,
			time.Duration(scenario.TimeoutSeconds)*time.Second)
		if err != nil {
			return err
		}
		if err := writeJSONFile(reportPath("workflow_test_report.json"), result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("test %s failed: %v", result.TestName, result.Errors)
		}
		fmt.Printf("Test %s passed in %.2fs\n", result.TestName, result.ExecutionTime.Seconds())
		return nil
	}

	report, _, err := r.RunAllTests()
	if err != nil {
		return err
	}
	if err := writeJSONFile(reportPath("workflow_test_report.json"), report); err != nil {
		return err
	}
	if report.OverallStatus != "PASSED" {
		return fmt.Errorf("%d of %d tests failed",
			report.Summary.FailedTests, report.Summary.TotalTests)
	}
	fmt.Printf("All %d tests passed\n", report.Summary.TotalTests)
	return nil
}

// runSmoke verifies the emulator answers, the state machine exists and a
// trivial execution completes with a successful final result.
func runSmoke(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	c, err := client.New(client.Options{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	if err := c.TestConnection(); err != nil {
		return fmt.Errorf("step functions local is not reachable: %w", err)
	}
	info, err := c.DescribeStateMachine(cfg.StateMachineARN)
	if err != nil {
		return fmt.Errorf("state machine is not accessible: %w", err)
	}
	logger.Info("state machine accessible", "name", info.Name, "status", info.Status)

	input := map[string]interface{}{
		"requestId": "smoke-test",
		"inputData": map[string]interface{}{"value": "healthcheck"},
	}
	executionARN, err := c.StartExecution(cfg.StateMachineARN, input, "")
	if err != nil {
		return fmt.Errorf("failed to start healthcheck execution: %w", err)
	}

	status, err := c.WaitForCompletion(executionARN, 60*time.Second, 2*time.Second)
	if err != nil {
		return err
	}
	if status.Status != "SUCCEEDED" {
		return fmt.Errorf("healthcheck execution ended with status %s", status.Status)
	}
	if status.Output == nil || !status.Output.IsStructured() {
		return fmt.Errorf("healthcheck execution produced no structured output")
	}
	success, ok := validator.NestedValue(status.Output.Structured(), "finalResult.success")
	if !ok || success != true {
		return fmt.Errorf("healthcheck output did not report finalResult.success=true")
	}

	fmt.Println("Smoke test passed")
	return nil
}

// createStateMachine registers the workflow on the emulator. Creation is
// idempotent; an existing machine with the same name is left untouched.
func createStateMachine(definitionPath, machineName, roleARN string, functionARNs []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	definition := defaultDefinition
	if definitionPath != "" {
		data, err := os.ReadFile(definitionPath)
		if err != nil {
			return fmt.Errorf("failed to read definition: %w", err)
		}
		definition = string(data)
	}
	definition = substitutePlaceholders(definition, functionARNs)

	c, err := client.New(client.Options{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	existing, err := c.ListStateMachines()
	if err != nil {
		return fmt.Errorf("failed to list state machines: %w", err)
	}
	for _, machine := range existing {
		if machine.Name == machineName {
			fmt.Printf("State machine already exists: %s\n", machine.StateMachineARN)
			return nil
		}
	}

	arn, err := c.CreateStateMachine(machineName, definition, roleARN)
	if err != nil {
		return fmt.Errorf("failed to create state machine: %w", err)
	}
	fmt.Printf("Created state machine: %s\n", arn)
	return nil
}

// substitutePlaceholders replaces ${Placeholder} markers with the supplied
// ARNs. Unsubstituted placeholders fall back to local Lambda-style ARNs, which
// is what Step Functions Local expects when SAM Local hosts the functions.
func substitutePlaceholders(definition string, pairs []string) string {
	replacements := map[string]string{
		"State1FunctionArn": "arn:aws:lambda:us-east-1:123456789012:function:State1Function",
		"State2FunctionArn": "arn:aws:lambda:us-east-1:123456789012:function:State2Function",
		"State3FunctionArn": "arn:aws:lambda:us-east-1:123456789012:function:State3Function",
	}
	for _, pair := range pairs {
		if key, value, found := strings.Cut(pair, "="); found {
			replacements[key] = value
		}
	}
	for key, value := range replacements {
		definition = strings.ReplaceAll(definition, "${"+key+"}", value)
	}
	return definition
}

// findScenario resolves a named scenario from the configured set.
func findScenario(r *runner.Runner, name string) (*config.Scenario, error) {
	for _, scenario := range r.Scenarios() {
		if scenario.Name == name {
			return &scenario, nil
		}
	}
	return nil, fmt.Errorf("no scenario named %q is configured", name)
}

func reportPath(fallback string) string {
	if outputPath != "" {
		return outputPath
	}
	return fallback
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
