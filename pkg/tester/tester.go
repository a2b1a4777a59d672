// Package tester drives complete workflow test scenarios end-to-end:
// validate input, start, monitor, validate outputs, validate data flow.
package tester

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/google/uuid"

	"github.com/tcmartin/sfnharness/pkg/client"
	"github.com/tcmartin/sfnharness/pkg/config"
	"github.com/tcmartin/sfnharness/pkg/logging"
	"github.com/tcmartin/sfnharness/pkg/monitor"
	"github.com/tcmartin/sfnharness/pkg/validator"
)

// Stages a scenario passes through. A scenario that short-circuits keeps the
// stage it failed in.
const (
	StagePending         = "PENDING"
	StageInputValidated  = "INPUT_VALIDATED"
	StageStarted         = "STARTED"
	StageMonitored       = "MONITORED"
	StageOutputValidated = "OUTPUT_VALIDATED"
)

// API is the slice of the execution client the tester needs.
type API interface {
	monitor.API
	StartExecution(stateMachineARN string, input map[string]interface{}, name string) (string, error)
}

// WorkflowTestResult is the full outcome of one scenario
type WorkflowTestResult struct {
	TestName          string                       `json:"test_name"`
	Success           bool                         `json:"success"`
	Stage             string                       `json:"stage"`
	ExecutionARN      string                       `json:"execution_arn,omitempty"`
	ExecutionStatus   string                       `json:"execution_status,omitempty"`
	Input             map[string]interface{}       `json:"input_data"`
	FinalOutput       *client.Payload              `json:"final_output,omitempty"`
	ExecutionTime     time.Duration                `json:"-"`
	ValidationResults []validator.ValidationResult `json:"validation_results"`
	Errors            []string                     `json:"errors"`
	Warnings          []string                     `json:"warnings"`
	Events            []*sfn.HistoryEvent          `json:"-"`
	DataFlow          []monitor.FlowEntry          `json:"data_flow_trace,omitempty"`
}

// Tester executes workflow test scenarios against one state machine
type Tester struct {
	api               API
	stateMachineARN   string
	inputValidator    *validator.InputOutputValidator
	dataFlowValidator *validator.DataFlowValidator
	logger            *slog.Logger

	// PollInterval is the describe-poll delay used while monitoring
	PollInterval time.Duration

	// PacingDelay separates sequential scenarios so the emulator is not
	// overwhelmed
	PacingDelay time.Duration
}

// NewTester creates a tester for the given state machine.
func NewTester(api API, stateMachineARN string, logger *slog.Logger) *Tester {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tester{
		api:               api,
		stateMachineARN:   stateMachineARN,
		inputValidator:    validator.NewInputOutputValidator(logger),
		dataFlowValidator: validator.NewDataFlowValidator(logger),
		logger:            logger,
		PollInterval:      2 * time.Second,
		PacingDelay:       2 * time.Second,
	}
}

// RunCompleteWorkflowTest runs one scenario end-to-end. Client failures are
// collected on the result, never raised, so a multi-scenario run survives a
// single scenario failing.
func (t *Tester) RunCompleteWorkflowTest(testName string, input map[string]interface{}, timeout time.Duration) *WorkflowTestResult {
	start := time.Now()

	result := &WorkflowTestResult{
		TestName:          testName,
		Stage:             StagePending,
		Input:             input,
		ValidationResults: []validator.ValidationResult{},
		Errors:            []string{},
		Warnings:          []string{},
	}
	defer func() {
		result.ExecutionTime = time.Since(start)
		t.logger.Info("workflow test completed",
			"test", testName,
			"success", result.Success,
			"elapsed", result.ExecutionTime)
	}()

	t.logger.Info("starting workflow test", "test", testName)

	// Input validation short-circuits before anything touches the emulator.
	inputValidation := t.inputValidator.ValidateWorkflowInput(input)
	result.ValidationResults = append(result.ValidationResults, inputValidation)
	if !inputValidation.IsValid {
		result.Errors = append(result.Errors, inputValidation.Errors...)
		result.Warnings = append(result.Warnings, inputValidation.Warnings...)
		return result
	}
	result.Stage = StageInputValidated

	executionName := fmt.Sprintf("%s_%s", testName, uuid.NewString()[:8])
	executionARN, err := t.api.StartExecution(t.stateMachineARN, input, executionName)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to start workflow execution: %v", err))
		return result
	}
	result.ExecutionARN = executionARN
	result.Stage = StageStarted

	mon := monitor.NewMonitor(t.api, t.logger)
	mon.Timeout = timeout
	mon.PollInterval = t.PollInterval

	monitoring := mon.MonitorWithDetails(executionARN)
	result.Errors = append(result.Errors, monitoring.Errors...)
	result.Events = monitoring.Events
	result.DataFlow = monitoring.DataFlow
	result.Stage = StageMonitored

	if monitoring.FinalStatus != nil {
		result.ExecutionStatus = monitoring.FinalStatus.Status
		result.FinalOutput = monitoring.FinalStatus.Output
	}

	switch result.ExecutionStatus {
	case sfn.ExecutionStatusSucceeded:
		if result.FinalOutput == nil {
			result.Errors = append(result.Errors, "Execution succeeded but produced no output")
			return result
		}

		validations := t.performDetailedValidation(input, *result.FinalOutput, monitoring.StateOutputs)
		result.ValidationResults = append(result.ValidationResults, validations...)
		result.Stage = StageOutputValidated

		result.Success = true
		for _, vr := range validations {
			if !vr.IsValid {
				result.Success = false
			}
			result.Errors = append(result.Errors, vr.Errors...)
			result.Warnings = append(result.Warnings, vr.Warnings...)
		}

	case sfn.ExecutionStatusFailed, sfn.ExecutionStatusTimedOut, sfn.ExecutionStatusAborted:
		result.Errors = append(result.Errors, fmt.Sprintf("Workflow execution failed with status: %s", result.ExecutionStatus))

	case sfn.ExecutionStatusRunning:
		result.Errors = append(result.Errors, fmt.Sprintf("Workflow execution did not reach a terminal status within %s", timeout))
	}

	return result
}

// performDetailedValidation runs the full post-success validation batch:
// final output shape, each individually captured state output, and
// cross-state continuity.
func (t *Tester) performDetailedValidation(input map[string]interface{}, finalOutput client.Payload, stateOutputs map[string]client.Payload) []validator.ValidationResult {
	var results []validator.ValidationResult

	finalData := finalOutput.Structured()
	if finalData == nil {
		return append(results, validator.ValidationResult{
			IsValid:  false,
			Errors:   []string{"Final output is not structured JSON"},
			Warnings: []string{},
		})
	}

	results = append(results, t.inputValidator.ValidateState3Output(finalData))

	state1Data := structuredStateOutput(stateOutputs, "State1", &results)
	state2Data := structuredStateOutput(stateOutputs, "State2", &results)

	if state1Data != nil {
		results = append(results, t.inputValidator.ValidateState1Output(state1Data))
	}
	if state2Data != nil {
		results = append(results, t.inputValidator.ValidateState2Output(state2Data))
	}

	if state1Data != nil && state2Data != nil {
		results = append(results, t.dataFlowValidator.ValidateContinuity(input, state1Data, state2Data, finalData))
	}

	return results
}

// structuredStateOutput fetches a state's captured output when it parsed as
// JSON; a raw (unparseable) capture is itself a validation failure.
func structuredStateOutput(stateOutputs map[string]client.Payload, name string, results *[]validator.ValidationResult) map[string]interface{} {
	payload, ok := stateOutputs[name]
	if !ok {
		return nil
	}
	if !payload.IsStructured() {
		*results = append(*results, validator.ValidationResult{
			IsValid:  false,
			Errors:   []string{fmt.Sprintf("%s output is not structured JSON", name)},
			Warnings: []string{},
		})
		return nil
	}
	return payload.Structured()
}

// RunMultipleScenarios executes scenarios strictly sequentially with a fixed
// pacing delay between them. Result order matches scenario order.
func (t *Tester) RunMultipleScenarios(scenarios []config.Scenario) []*WorkflowTestResult {
	results := make([]*WorkflowTestResult, 0, len(scenarios))

	for i, scenario := range scenarios {
		name := scenario.Name
		if name == "" {
			name = fmt.Sprintf("test_scenario_%d", i+1)
		}

		timeout := time.Duration(scenario.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 300 * time.Second
		}

		t.logger.Info("running test scenario", "index", i+1, "total", len(scenarios), "name", name)
		results = append(results, t.RunCompleteWorkflowTest(name, scenario.Input, timeout))

		if i < len(scenarios)-1 {
			time.Sleep(t.PacingDelay)
		}
	}

	return results
}
