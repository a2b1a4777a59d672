// Package orchestrator runs the full integration-test suite: environment
// diagnostics, connectivity checks, scenario execution, data-flow integrity
// verification, CI-compatibility checks and performance analysis.
package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/tcmartin/sfnharness/pkg/client"
	"github.com/tcmartin/sfnharness/pkg/config"
	"github.com/tcmartin/sfnharness/pkg/logging"
	"github.com/tcmartin/sfnharness/pkg/runner"
	"github.com/tcmartin/sfnharness/pkg/tester"
	"github.com/tcmartin/sfnharness/pkg/validator"
)

// Environment captures the endpoints and readiness of the test environment
type Environment struct {
	StepFunctionsEndpoint string          `json:"stepfunctions_endpoint"`
	SAMAPIEndpoint        string          `json:"sam_api_endpoint"`
	StateMachineARN       string          `json:"state_machine_arn"`
	EnvironmentReady      bool            `json:"environment_ready"`
	ServicesStatus        map[string]bool `json:"services_status"`
}

// ConfigKeyStatus reports presence of one required configuration key
type ConfigKeyStatus struct {
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

// Diagnostics is the phase-1 environment report
type Diagnostics struct {
	Timestamp           time.Time                  `json:"timestamp"`
	EnvironmentReady    bool                       `json:"environment_ready"`
	SystemInfo          map[string]interface{}     `json:"system_info"`
	ServiceEndpoints    map[string]string          `json:"service_endpoints"`
	ConfigurationStatus map[string]ConfigKeyStatus `json:"configuration_status"`
	Issues              []string                   `json:"issues"`
}

// ScenarioTiming names a scenario and its elapsed time
type ScenarioTiming struct {
	Name string  `json:"name"`
	Time float64 `json:"time"`
}

// Performance is the phase-6 timing analysis
type Performance struct {
	TotalExecutionTime  float64         `json:"total_execution_time"`
	AverageScenarioTime float64         `json:"average_scenario_time"`
	FastestScenario     *ScenarioTiming `json:"fastest_scenario,omitempty"`
	SlowestScenario     *ScenarioTiming `json:"slowest_scenario,omitempty"`
	TimeRangeSeconds    float64         `json:"time_range_seconds"`
}

// CICompatibility is the phase-5 environment-compatibility report
type CICompatibility struct {
	Compatible            bool            `json:"compatible"`
	CIEnvironmentDetected bool            `json:"ci_environment_detected"`
	RequiredTools         map[string]bool `json:"required_tools_available"`
	Issues                []string        `json:"issues"`
}

// DataFlowIssue records a scenario whose final output failed re-verification
type DataFlowIssue struct {
	Scenario string   `json:"scenario"`
	Issues   []string `json:"issues"`
}

// IntegrityVerification is the phase-4 data-flow re-verification summary
type IntegrityVerification struct {
	Verified          bool            `json:"integrity_verified"`
	VerifiedScenarios int             `json:"verified_scenarios"`
	TotalScenarios    int             `json:"total_scenarios"`
	DataFlowIssues    []DataFlowIssue `json:"data_flow_issues"`
}

// Result aggregates the whole integration-test run
type Result struct {
	TestSuiteName       string                     `json:"test_suite_name"`
	Environment         *Environment               `json:"environment"`
	TotalScenarios      int                        `json:"total_scenarios"`
	SuccessfulScenarios int                        `json:"successful_scenarios"`
	FailedScenarios     int                        `json:"failed_scenarios"`
	ExecutionTime       time.Duration              `json:"-"`
	DetailedResults     []*tester.WorkflowTestResult `json:"detailed_results"`
	Diagnostics         *Diagnostics               `json:"environment_diagnostics"`
	Integrity           *IntegrityVerification     `json:"integrity,omitempty"`
	Performance         *Performance               `json:"performance,omitempty"`
	CICompatibility     *CICompatibility           `json:"ci_compatibility,omitempty"`
	CICompatible        bool                       `json:"ci_compatible"`
	Errors              []string                   `json:"errors"`
	Warnings            []string                   `json:"warnings"`
}

// SuccessRate returns the percentage of scenarios that passed.
func (r *Result) SuccessRate() float64 {
	if r.TotalScenarios == 0 {
		return 0
	}
	return float64(r.SuccessfulScenarios) / float64(r.TotalScenarios) * 100
}

// OverallSuccess is the aggregate pass/fail verdict for the run.
func (r *Result) OverallSuccess() bool {
	return r.FailedScenarios == 0 &&
		len(r.Errors) == 0 &&
		r.Environment.EnvironmentReady
}

// Orchestrator manages the six-phase integration-test run
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *runner.Runner

	// httpClient probes the SAM Local API endpoint
	httpClient *http.Client

	// requiredTools must be on PATH for the CI environment to count as
	// compatible; java runs Step Functions Local, docker runs SAM Local.
	requiredTools []string
}

// New creates an orchestrator for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		cfg:           cfg,
		logger:        logger,
		runner:        runner.NewRunner(cfg, logger),
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		requiredTools: []string{"java", "docker"},
	}
}

// Run executes the complete integration test. Each phase short-circuits the
// remainder on a hard failure; soft failures become warnings.
func (o *Orchestrator) Run() *Result {
	start := time.Now()

	result := &Result{
		TestSuiteName: "Complete Workflow Integration Test",
		Environment: &Environment{
			StepFunctionsEndpoint: o.cfg.Endpoint,
			SAMAPIEndpoint:        o.cfg.SAMAPIEndpoint,
			StateMachineARN:       o.cfg.StateMachineARN,
			ServicesStatus:        map[string]bool{},
		},
		DetailedResults: []*tester.WorkflowTestResult{},
		Errors:          []string{},
		Warnings:        []string{},
	}
	defer func() {
		result.ExecutionTime = time.Since(start)
		o.logSummary(result)
	}()

	o.logger.Info("starting complete integration test suite")

	o.logger.Info("phase 1: environment diagnostics and setup verification")
	result.Diagnostics = o.performDiagnostics()
	result.Environment.EnvironmentReady = result.Diagnostics.EnvironmentReady
	if !result.Diagnostics.EnvironmentReady {
		result.Errors = append(result.Errors, "Environment is not ready for testing")
		return result
	}

	o.logger.Info("phase 2: service connectivity testing")
	if !o.testConnectivity(result) {
		return result
	}

	o.logger.Info("phase 3: workflow execution testing")
	o.executeScenarios(result)

	o.logger.Info("phase 4: data flow integrity verification")
	result.Integrity = o.verifyDataFlowIntegrity(result.DetailedResults)
	for _, issue := range result.Integrity.DataFlowIssues {
		result.Errors = append(result.Errors,
			fmt.Sprintf("data flow issue in scenario %s: %v", issue.Scenario, issue.Issues))
	}

	o.logger.Info("phase 5: CI compatibility check")
	result.CICompatibility = o.checkCICompatibility()
	result.CICompatible = result.CICompatibility.Compatible
	if !result.CICompatible {
		result.Warnings = append(result.Warnings, result.CICompatibility.Issues...)
	}

	o.logger.Info("phase 6: performance analysis")
	result.Performance = analyzePerformance(result.DetailedResults)

	return result
}

// performDiagnostics checks required configuration and collects system
// information.
func (o *Orchestrator) performDiagnostics() *Diagnostics {
	diagnostics := &Diagnostics{
		Timestamp: time.Now(),
		SystemInfo: map[string]interface{}{
			"go_version":        runtime.Version(),
			"platform":          runtime.GOOS,
			"working_directory": workingDirectory(),
			"environment_variables": map[string]string{
				"STEPFUNCTIONS_ENDPOINT": os.Getenv("STEPFUNCTIONS_ENDPOINT"),
				"STATE_MACHINE_ARN":      os.Getenv("STATE_MACHINE_ARN"),
				"CI":                     getenvDefault("CI", "false"),
				"GITHUB_ACTIONS":         getenvDefault("GITHUB_ACTIONS", "false"),
			},
		},
		ServiceEndpoints: map[string]string{
			"stepfunctions_local":          o.cfg.Endpoint,
			"sam_local_api":                o.cfg.SAMAPIEndpoint,
			"configured_state_machine_arn": o.cfg.StateMachineARN,
		},
		ConfigurationStatus: map[string]ConfigKeyStatus{},
		Issues:              []string{},
	}

	required := map[string]string{
		"stepfunctions_local_endpoint": o.cfg.Endpoint,
		"state_machine_arn":            o.cfg.StateMachineARN,
	}
	for key, value := range required {
		diagnostics.ConfigurationStatus[key] = ConfigKeyStatus{
			Present: value != "",
			Value:   valueOrNotSet(value),
		}
		if value == "" {
			diagnostics.Issues = append(diagnostics.Issues,
				fmt.Sprintf("Required configuration '%s' is missing or empty", key))
		}
	}

	diagnostics.EnvironmentReady = len(diagnostics.Issues) == 0
	return diagnostics
}

// testConnectivity verifies the emulator is reachable; the SAM Local API and
// the state machine's existence are checked but only warned about.
func (o *Orchestrator) testConnectivity(result *Result) bool {
	o.logger.Info("testing step functions local connectivity")

	if err := o.runner.Setup(); err != nil {
		result.Environment.ServicesStatus["stepfunctions_local"] = false
		if errors.Is(err, client.ErrConnection) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Step Functions Local not available at %s", o.cfg.Endpoint))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("Service connectivity test error: %v", err))
		}
		return false
	}
	result.Environment.ServicesStatus["stepfunctions_local"] = true

	samAvailable := o.probeSAMAPI()
	result.Environment.ServicesStatus["sam_local_api"] = samAvailable
	if !samAvailable {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("SAM Local API may not be available at %s", o.cfg.SAMAPIEndpoint))
	}

	if _, err := o.runner.Client().DescribeStateMachine(o.cfg.StateMachineARN); err != nil {
		result.Environment.ServicesStatus["state_machine"] = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("State machine may not exist: %v", err))
	} else {
		result.Environment.ServicesStatus["state_machine"] = true
		o.logger.Info("state machine exists and is accessible")
	}

	return true
}

// probeSAMAPI treats any HTTP response, including 404, as "reachable".
func (o *Orchestrator) probeSAMAPI() bool {
	if o.cfg.SAMAPIEndpoint == "" {
		return false
	}
	resp, err := o.httpClient.Get(o.cfg.SAMAPIEndpoint + "/")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound
}

// executeScenarios runs every scenario sequentially with a short pacing
// delay, aggregating errors and warnings onto the result.
func (o *Orchestrator) executeScenarios(result *Result) {
	scenarios := o.runner.Scenarios()
	o.logger.Info("executing test scenarios", "count", len(scenarios))

	for i, scenario := range scenarios {
		name := scenario.Name
		if name == "" {
			name = fmt.Sprintf("scenario_%d", i+1)
		}
		o.logger.Info("executing scenario", "index", i+1, "total", len(scenarios), "name", name)

		timeout := time.Duration(scenario.TimeoutSeconds) * time.Second
		testResult, err := o.runner.RunSingleTest(name, scenario.Input, timeout)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Scenario execution error: %v", err))
			continue
		}

		result.DetailedResults = append(result.DetailedResults, testResult)
		if !testResult.Success {
			result.Errors = append(result.Errors, testResult.Errors...)
			result.Warnings = append(result.Warnings, testResult.Warnings...)
		}

		if i < len(scenarios)-1 {
			time.Sleep(time.Second)
		}
	}

	result.TotalScenarios = len(result.DetailedResults)
	for _, r := range result.DetailedResults {
		if r.Success {
			result.SuccessfulScenarios++
		}
	}
	result.FailedScenarios = result.TotalScenarios - result.SuccessfulScenarios
}

// verifyDataFlowIntegrity re-validates the final output of every successful
// scenario.
func (o *Orchestrator) verifyDataFlowIntegrity(results []*tester.WorkflowTestResult) *IntegrityVerification {
	verification := &IntegrityVerification{
		TotalScenarios: len(results),
		DataFlowIssues: []DataFlowIssue{},
	}

	v := validator.NewInputOutputValidator(o.logger)
	for _, result := range results {
		if !result.Success || result.FinalOutput == nil || !result.FinalOutput.IsStructured() {
			continue
		}

		validation := v.ValidateState3Output(result.FinalOutput.Structured())
		if validation.IsValid {
			verification.VerifiedScenarios++
		} else {
			verification.DataFlowIssues = append(verification.DataFlowIssues, DataFlowIssue{
				Scenario: result.TestName,
				Issues:   validation.Errors,
			})
		}
	}

	verification.Verified = verification.VerifiedScenarios > 0 && len(verification.DataFlowIssues) == 0
	return verification
}

// checkCICompatibility verifies required external tools and environment
// variables. Failures here are non-fatal; they only clear the flag.
func (o *Orchestrator) checkCICompatibility() *CICompatibility {
	compatibility := &CICompatibility{
		RequiredTools: map[string]bool{},
		Issues:        []string{},
	}

	compatibility.CIEnvironmentDetected =
		os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"

	toolsOK := true
	for _, tool := range o.requiredTools {
		_, err := exec.LookPath(tool)
		compatibility.RequiredTools[tool] = err == nil
		if err != nil {
			toolsOK = false
		}
	}
	if !toolsOK {
		var missing []string
		for tool, available := range compatibility.RequiredTools {
			if !available {
				missing = append(missing, tool)
			}
		}
		compatibility.Issues = append(compatibility.Issues, fmt.Sprintf("Missing required tools: %v", missing))
	}

	var missingEnv []string
	for _, name := range []string{"STEPFUNCTIONS_ENDPOINT", "STATE_MACHINE_ARN"} {
		if os.Getenv(name) == "" {
			missingEnv = append(missingEnv, name)
		}
	}
	if len(missingEnv) > 0 {
		compatibility.Issues = append(compatibility.Issues, fmt.Sprintf("Missing environment variables: %v", missingEnv))
	}

	compatibility.Compatible = toolsOK && len(missingEnv) == 0
	return compatibility
}

// analyzePerformance computes per-scenario timing statistics.
func analyzePerformance(results []*tester.WorkflowTestResult) *Performance {
	performance := &Performance{}
	if len(results) == 0 {
		return performance
	}

	var fastest, slowest *ScenarioTiming
	total := 0.0
	for _, result := range results {
		seconds := result.ExecutionTime.Seconds()
		total += seconds

		if fastest == nil || seconds < fastest.Time {
			fastest = &ScenarioTiming{Name: result.TestName, Time: seconds}
		}
		if slowest == nil || seconds > slowest.Time {
			slowest = &ScenarioTiming{Name: result.TestName, Time: seconds}
		}
	}

	performance.TotalExecutionTime = total
	performance.AverageScenarioTime = total / float64(len(results))
	performance.FastestScenario = fastest
	performance.SlowestScenario = slowest
	performance.TimeRangeSeconds = slowest.Time - fastest.Time
	return performance
}

func (o *Orchestrator) logSummary(result *Result) {
	o.logger.Info("integration test results summary",
		"suite", result.TestSuiteName,
		"total", result.TotalScenarios,
		"successful", result.SuccessfulScenarios,
		"failed", result.FailedScenarios,
		"successRate", fmt.Sprintf("%.1f%%", result.SuccessRate()),
		"elapsed", result.ExecutionTime,
		"overallSuccess", result.OverallSuccess(),
		"ciCompatible", result.CICompatible)

	for _, err := range result.Errors {
		o.logger.Error("integration test error", "error", err)
	}
	for _, warning := range result.Warnings {
		o.logger.Warn("integration test warning", "warning", warning)
	}
}

func workingDirectory() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func valueOrNotSet(value string) string {
	if value == "" {
		return "NOT_SET"
	}
	return value
}
