package validator

import (
	"fmt"
	"log/slog"

	"github.com/tcmartin/sfnharness/pkg/logging"
)

// DataFlowValidator checks that identifiers and transformed values stay
// consistent as data moves between states.
type DataFlowValidator struct {
	logger *slog.Logger
}

// NewDataFlowValidator creates a data-flow validator.
func NewDataFlowValidator(logger *slog.Logger) *DataFlowValidator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DataFlowValidator{logger: logger}
}

// ValidateContinuity verifies the whole data-flow chain: requestId equality
// across every payload, preservation of the original input value, and the
// deterministic transformation applied at each stage.
func (v *DataFlowValidator) ValidateContinuity(workflowInput, state1Output, state2Output, state3Output map[string]interface{}) ValidationResult {
	var errors, warnings []string

	requestID, _ := workflowInput["requestId"].(string)
	if !v.checkRequestIDContinuity(requestID, state1Output, state2Output, state3Output) {
		errors = append(errors, "requestId is not consistent across all states")
	}

	originalValue, _ := NestedValue(workflowInput, "inputData.value")
	if !v.checkOriginalDataPreservation(originalValue, state1Output, state2Output, state3Output) {
		errors = append(errors, "Original input data is not properly preserved through the workflow")
	}

	transformation := v.validateTransformations(workflowInput, state1Output, state2Output, state3Output)
	errors = append(errors, transformation.Errors...)
	warnings = append(warnings, transformation.Warnings...)

	result := newResult(errors, warnings)
	if result.IsValid {
		v.logger.Info("data flow continuity validation passed")
	} else {
		v.logger.Error("data flow continuity validation failed", "errors", result.Errors)
	}
	return result
}

func (v *DataFlowValidator) checkRequestIDContinuity(requestID string, outputs ...map[string]interface{}) bool {
	for _, output := range outputs {
		if output["requestId"] != requestID {
			return false
		}
	}
	return true
}

func (v *DataFlowValidator) checkOriginalDataPreservation(originalValue interface{}, state1Output, state2Output, state3Output map[string]interface{}) bool {
	if value, _ := NestedValue(state1Output, "state1Output.originalInput"); value != originalValue {
		return false
	}

	// State2 carries State1's data forward verbatim.
	if value, _ := NestedValue(state2Output, "state1Output.originalInput"); value != originalValue {
		return false
	}

	// State3 keeps every state's data under allStatesData.
	if value, _ := NestedValue(state3Output, "allStatesData.state1Output.originalInput"); value != originalValue {
		return false
	}

	return true
}

func (v *DataFlowValidator) validateTransformations(workflowInput, state1Output, state2Output, state3Output map[string]interface{}) ValidationResult {
	var errors, warnings []string

	originalValue := ""
	if value, ok := NestedValue(workflowInput, "inputData.value"); ok {
		originalValue, _ = value.(string)
	}

	state1Processed := stringAt(state1Output, "state1Output.processedValue")
	expectedState1 := fmt.Sprintf("State1_processed_%s", originalValue)
	if state1Processed != expectedState1 {
		errors = append(errors, fmt.Sprintf("State1 transformation incorrect. Expected: %s, Got: %s", expectedState1, state1Processed))
	}

	state2Processed := stringAt(state2Output, "state2Output.processedValue")
	expectedState2 := fmt.Sprintf("State2_enhanced_%s", expectedState1)
	if state2Processed != expectedState2 {
		errors = append(errors, fmt.Sprintf("State2 transformation incorrect. Expected: %s, Got: %s", expectedState2, state2Processed))
	}

	finalValue := stringAt(state3Output, "finalResult.finalValue")
	expectedFinal := fmt.Sprintf("State3_final_%s", expectedState2)
	if finalValue != expectedFinal {
		errors = append(errors, fmt.Sprintf("State3 transformation incorrect. Expected: %s, Got: %s", expectedFinal, finalValue))
	}

	return newResult(errors, warnings)
}

func stringAt(data map[string]interface{}, path string) string {
	value, ok := NestedValue(data, path)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}
