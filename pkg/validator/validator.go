// Package validator checks workflow payload shapes and cross-state data-flow
// consistency. Invalid data is a normal, representable outcome: validators
// return results, never errors, for data shape problems.
package validator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tcmartin/sfnharness/pkg/logging"
)

// ValidationResult holds the outcome of one validation pass
type ValidationResult struct {
	// IsValid is true when no errors were found
	IsValid bool `json:"is_valid"`

	// Errors are hard failures
	Errors []string `json:"errors"`

	// Warnings are naming-convention and other soft mismatches
	Warnings []string `json:"warnings"`

	// ValidatedData echoes the payload when validation passed
	ValidatedData map[string]interface{} `json:"validated_data,omitempty"`
}

func newResult(errors, warnings []string) ValidationResult {
	if errors == nil {
		errors = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationResult{
		IsValid:  len(errors) == 0,
		Errors:   errors,
		Warnings: warnings,
	}
}

// InputOutputValidator validates the workflow input and each state's output
type InputOutputValidator struct {
	logger *slog.Logger
}

// NewInputOutputValidator creates a validator.
func NewInputOutputValidator(logger *slog.Logger) *InputOutputValidator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &InputOutputValidator{logger: logger}
}

// ValidateWorkflowInput checks the initial workflow input payload.
func (v *InputOutputValidator) ValidateWorkflowInput(input map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"requestId", "inputData"} {
		if _, ok := input[field]; !ok {
			errors = append(errors, fmt.Sprintf("Required field '%s' is missing", field))
		}
	}

	if raw, ok := input["requestId"]; ok {
		id, isString := raw.(string)
		if !isString || strings.TrimSpace(id) == "" {
			errors = append(errors, "requestId must be a non-empty string")
		}
	}

	if raw, ok := input["inputData"]; ok {
		data, isMap := raw.(map[string]interface{})
		if !isMap {
			errors = append(errors, "inputData must be a dictionary")
		} else {
			nested := v.validateInputDataStructure(data)
			errors = append(errors, nested.Errors...)
			warnings = append(warnings, nested.Warnings...)
		}
	}

	result := newResult(errors, warnings)
	v.logResult("workflow input", result)
	if result.IsValid {
		result.ValidatedData = input
	}
	return result
}

// ValidateState1Output checks the output shape produced by State1.
func (v *InputOutputValidator) ValidateState1Output(output map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"requestId", "state1Output", "stateMetadata"} {
		if _, ok := output[field]; !ok {
			errors = append(errors, fmt.Sprintf("Required field '%s' is missing from State1 output", field))
		}
	}

	if raw, ok := output["state1Output"]; ok {
		nested := v.validateState1Structure(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["stateMetadata"]; ok {
		nested := v.validateStateMetadata(asMap(raw), "State1")
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	result := newResult(errors, warnings)
	v.logResult("state1 output", result)
	if result.IsValid {
		result.ValidatedData = output
	}
	return result
}

// ValidateState2Output checks the output shape produced by State2, including
// preservation of the State1 output it embeds.
func (v *InputOutputValidator) ValidateState2Output(output map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"requestId", "state1Output", "state2Output", "stateMetadata", "dataFlow"} {
		if _, ok := output[field]; !ok {
			errors = append(errors, fmt.Sprintf("Required field '%s' is missing from State2 output", field))
		}
	}

	if raw, ok := output["state1Output"]; ok {
		if nested := v.validateState1Structure(asMap(raw)); !nested.IsValid {
			errors = append(errors, "State1 output data is not properly preserved in State2 output")
		}
	}

	if raw, ok := output["state2Output"]; ok {
		nested := v.validateState2Structure(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["stateMetadata"]; ok {
		nested := v.validateStateMetadata(asMap(raw), "State2")
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["dataFlow"]; ok {
		nested := v.validateDataFlowStructure(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	result := newResult(errors, warnings)
	v.logResult("state2 output", result)
	if result.IsValid {
		result.ValidatedData = output
	}
	return result
}

// ValidateState3Output checks the final workflow output shape.
func (v *InputOutputValidator) ValidateState3Output(output map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"requestId", "executionSummary", "allStatesData", "finalResult", "stateMetadata"} {
		if _, ok := output[field]; !ok {
			errors = append(errors, fmt.Sprintf("Required field '%s' is missing from State3 output", field))
		}
	}

	if raw, ok := output["executionSummary"]; ok {
		nested := v.validateExecutionSummary(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["allStatesData"]; ok {
		nested := v.validateAllStatesData(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["finalResult"]; ok {
		nested := v.validateFinalResult(asMap(raw))
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	if raw, ok := output["stateMetadata"]; ok {
		nested := v.validateStateMetadata(asMap(raw), "State3")
		errors = append(errors, nested.Errors...)
		warnings = append(warnings, nested.Warnings...)
	}

	result := newResult(errors, warnings)
	v.logResult("state3 output", result)
	if result.IsValid {
		result.ValidatedData = output
	}
	return result
}

func (v *InputOutputValidator) validateInputDataStructure(data map[string]interface{}) ValidationResult {
	var errors, warnings []string

	if _, ok := data["value"]; !ok {
		errors = append(errors, "inputData must contain 'value' field")
	}

	if raw, ok := data["metadata"]; ok {
		if _, isMap := raw.(map[string]interface{}); !isMap {
			errors = append(errors, "metadata must be a dictionary")
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateState1Structure(data map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"processedValue", "originalInput"} {
		if _, ok := data[field]; !ok {
			errors = append(errors, fmt.Sprintf("State1 output missing required field: %s", field))
		}
	}

	if raw, ok := data["processedValue"]; ok {
		value, isString := raw.(string)
		if !isString {
			errors = append(errors, "processedValue must be a string")
		} else if !strings.HasPrefix(value, "State1_processed_") {
			warnings = append(warnings, "processedValue does not follow expected naming pattern")
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateState2Structure(data map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"processedValue", "previousStateData", "enhancementData"} {
		if _, ok := data[field]; !ok {
			errors = append(errors, fmt.Sprintf("State2 output missing required field: %s", field))
		}
	}

	if raw, ok := data["processedValue"]; ok {
		value, isString := raw.(string)
		if !isString {
			errors = append(errors, "processedValue must be a string")
		} else if !strings.HasPrefix(value, "State2_enhanced_") {
			warnings = append(warnings, "processedValue does not follow expected naming pattern")
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateStateMetadata(metadata map[string]interface{}, expectedState string) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"state", "executionTime"} {
		if _, ok := metadata[field]; !ok {
			errors = append(errors, fmt.Sprintf("State metadata missing required field: %s", field))
		}
	}

	if raw, ok := metadata["state"]; ok && raw != expectedState {
		errors = append(errors, fmt.Sprintf("Expected state '%s', got '%v'", expectedState, raw))
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateDataFlowStructure(dataFlow map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"inputSource", "outputDestination", "dataTransformation"} {
		if _, ok := dataFlow[field]; !ok {
			errors = append(errors, fmt.Sprintf("DataFlow missing required field: %s", field))
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateExecutionSummary(summary map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"totalStates", "executionStatus"} {
		if _, ok := summary[field]; !ok {
			errors = append(errors, fmt.Sprintf("Execution summary missing required field: %s", field))
		}
	}

	if raw, ok := summary["totalStates"]; ok {
		if asInt(raw) != 3 {
			errors = append(errors, fmt.Sprintf("Expected 3 total states, got %v", raw))
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateAllStatesData(allStates map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, state := range []string{"state1Output", "state2Output", "state3Output"} {
		if _, ok := allStates[state]; !ok {
			errors = append(errors, fmt.Sprintf("All states data missing: %s", state))
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) validateFinalResult(finalResult map[string]interface{}) ValidationResult {
	var errors, warnings []string

	for _, field := range []string{"success", "finalValue", "processingChain"} {
		if _, ok := finalResult[field]; !ok {
			errors = append(errors, fmt.Sprintf("Final result missing required field: %s", field))
		}
	}

	if raw, ok := finalResult["success"]; ok {
		if _, isBool := raw.(bool); !isBool {
			errors = append(errors, "success field must be boolean")
		}
	}

	return newResult(errors, warnings)
}

func (v *InputOutputValidator) logResult(subject string, result ValidationResult) {
	if result.IsValid {
		v.logger.Info("validation passed", "subject", subject)
		return
	}
	v.logger.Error("validation failed", "subject", subject, "errors", result.Errors)
}

// asMap converts a payload value to a map, returning an empty map for
// non-object values so field checks report missing fields instead of
// panicking.
func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// asInt normalizes JSON numbers, which decode as float64.
func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
