// Package runner ties the client, tester and tracer together into the
// top-level test entry points used by the CLI and the orchestrator.
package runner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tcmartin/sfnharness/pkg/client"
	"github.com/tcmartin/sfnharness/pkg/config"
	"github.com/tcmartin/sfnharness/pkg/logging"
	"github.com/tcmartin/sfnharness/pkg/tester"
	"github.com/tcmartin/sfnharness/pkg/trace"
)

// Runner wires a configured client and tester and runs scenario batches
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	client *client.Client
	tester *tester.Tester
}

// FlowAnalysis pairs one test's name with its derived data-flow trace
type FlowAnalysis struct {
	TestName  string               `json:"test_name"`
	FlowTrace *trace.DataFlowTrace `json:"flow_trace"`
}

// DataFlowAnalysis summarizes the traces of all successful executions
type DataFlowAnalysis struct {
	AnalyzedExecutions int            `json:"analyzed_executions"`
	FlowAnalyses       []FlowAnalysis `json:"flow_analyses"`
}

// TestConfiguration echoes the settings a report was produced under
type TestConfiguration struct {
	StepFunctionsEndpoint string `json:"stepfunctions_endpoint"`
	StateMachineARN       string `json:"state_machine_arn"`
	ScenarioCount         int    `json:"test_scenarios_count"`
}

// FullReport is the batch report with data-flow analysis attached
type FullReport struct {
	*tester.Report
	DataFlowAnalysis  *DataFlowAnalysis `json:"data_flow_analysis,omitempty"`
	TestConfiguration TestConfiguration `json:"test_configuration"`
}

// NewRunner creates a runner; Setup must be called before running tests.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Setup creates the execution client, verifies connectivity and prepares the
// tester.
func (r *Runner) Setup() error {
	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := client.New(client.Options{
		Endpoint:        r.cfg.Endpoint,
		Region:          r.cfg.Region,
		AccessKeyID:     r.cfg.AccessKeyID,
		SecretAccessKey: r.cfg.SecretAccessKey,
		Logger:          r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create step functions client: %w", err)
	}

	if err := c.TestConnection(); err != nil {
		return fmt.Errorf("failed to connect to step functions local: %w", err)
	}

	r.client = c
	r.tester = tester.NewTester(c, r.cfg.StateMachineARN, r.logger)

	r.logger.Info("test environment setup completed")
	return nil
}

// Client exposes the underlying execution client after Setup.
func (r *Runner) Client() *client.Client {
	return r.client
}

// Tester exposes the underlying workflow tester after Setup.
func (r *Runner) Tester() *tester.Tester {
	return r.tester
}

// Scenarios returns the configured scenarios, falling back to the built-in
// sample set.
func (r *Runner) Scenarios() []config.Scenario {
	if len(r.cfg.Scenarios) > 0 {
		return r.cfg.Scenarios
	}
	r.logger.Info("no custom test scenarios provided, using default scenarios")
	return config.SampleScenarios()
}

// RunAllTests executes every configured scenario and builds the full report,
// including data-flow analysis over the successful executions.
func (r *Runner) RunAllTests() (*FullReport, []*tester.WorkflowTestResult, error) {
	if r.tester == nil {
		if err := r.Setup(); err != nil {
			return nil, nil, err
		}
	}

	scenarios := r.Scenarios()
	r.logger.Info("running test scenarios", "count", len(scenarios))

	results := r.tester.RunMultipleScenarios(scenarios)
	report := &FullReport{
		Report: r.tester.GenerateReport(results),
		TestConfiguration: TestConfiguration{
			StepFunctionsEndpoint: r.cfg.Endpoint,
			StateMachineARN:       r.cfg.StateMachineARN,
			ScenarioCount:         len(scenarios),
		},
	}

	if analysis := r.AnalyzeDataFlows(results); analysis.AnalyzedExecutions > 0 {
		report.DataFlowAnalysis = analysis
	}

	r.logger.Info("all tests completed", "status", report.OverallStatus)
	return report, results, nil
}

// RunSingleTest executes one named scenario.
func (r *Runner) RunSingleTest(testName string, input map[string]interface{}, timeout time.Duration) (*tester.WorkflowTestResult, error) {
	if r.tester == nil {
		if err := r.Setup(); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return r.tester.RunCompleteWorkflowTest(testName, input, timeout), nil
}

// AnalyzeDataFlows derives data-flow traces for the successful results that
// captured an event history.
func (r *Runner) AnalyzeDataFlows(results []*tester.WorkflowTestResult) *DataFlowAnalysis {
	tracer := trace.NewTracer(r.logger)
	analyses := []FlowAnalysis{}

	for _, result := range results {
		if !result.Success || len(result.Events) == 0 {
			continue
		}
		analyses = append(analyses, FlowAnalysis{
			TestName:  result.TestName,
			FlowTrace: tracer.Trace(result.Events),
		})
	}

	return &DataFlowAnalysis{
		AnalyzedExecutions: len(analyses),
		FlowAnalyses:       analyses,
	}
}
