// Package handlers implements the three Lambda-style state handlers that the
// workflow under test is built from. Each handler validates its input,
// carries the prior state's full payload forward and adds its own processed
// value under the "<Stage>_<verb>_<previousValue>" naming convention.
package handlers

import (
	"fmt"
	"time"

	"github.com/tcmartin/sfnharness/pkg/validator"
)

// Error is a typed handler failure carrying the state that rejected the
// payload.
type Error struct {
	State   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.State, e.Message)
}

// State1 processes the initial workflow input.
func State1(event map[string]interface{}) (map[string]interface{}, error) {
	if err := validateState1Input(event); err != nil {
		return nil, err
	}

	inputData := event["inputData"].(map[string]interface{})
	value := fmt.Sprintf("%v", inputData["value"])

	metadata, _ := inputData["metadata"].(map[string]interface{})
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	now := time.Now().Format(time.RFC3339Nano)

	return map[string]interface{}{
		"requestId": event["requestId"],
		"state1Output": map[string]interface{}{
			"processedValue": "State1_processed_" + value,
			"originalInput":  value,
			"inputMetadata":  metadata,
			"processingDetails": map[string]interface{}{
				"transformationType": "prefix_addition",
				"processingTime":     now,
			},
		},
		"stateMetadata": map[string]interface{}{
			"state":         "State1",
			"executionTime": now,
			"functionName":  "local_test",
		},
	}, nil
}

// State2 enhances State1's output while preserving it verbatim.
func State2(event map[string]interface{}) (map[string]interface{}, error) {
	if err := validateState2Input(event); err != nil {
		return nil, err
	}

	state1Output := event["state1Output"].(map[string]interface{})
	processedValue, _ := state1Output["processedValue"].(string)

	now := time.Now().Format(time.RFC3339Nano)

	return map[string]interface{}{
		"requestId":    event["requestId"],
		"state1Output": state1Output,
		"state2Output": map[string]interface{}{
			"processedValue":    "State2_enhanced_" + processedValue,
			"previousStateData": state1Output,
			"enhancementData": map[string]interface{}{
				"enhancementType": "data_enrichment",
				"additionalInfo":  fmt.Sprintf("enriched_at_%s", time.Now().Format("150405")),
				"processingChain": []interface{}{"State1", "State2"},
			},
			"processingDetails": map[string]interface{}{
				"transformationType": "enhancement_and_enrichment",
				"processingTime":     now,
			},
		},
		"stateMetadata": map[string]interface{}{
			"state":          "State2",
			"executionTime":  now,
			"functionName":   "local_test",
			"previousStates": []interface{}{"State1"},
		},
		"dataFlow": map[string]interface{}{
			"inputSource":        "State1",
			"outputDestination":  "State3",
			"dataTransformation": "enhancement_and_enrichment",
		},
	}, nil
}

// State3 aggregates all state data into the final workflow output.
func State3(event map[string]interface{}) (map[string]interface{}, error) {
	if err := validateState3Input(event); err != nil {
		return nil, err
	}

	state1Output := event["state1Output"].(map[string]interface{})
	state2Output := event["state2Output"].(map[string]interface{})

	state2Processed, _ := state2Output["processedValue"].(string)
	finalValue := "State3_final_" + state2Processed

	now := time.Now().Format(time.RFC3339Nano)

	processingChain := []interface{}{
		map[string]interface{}{
			"state":          "State1",
			"processedValue": state1Output["processedValue"],
			"originalInput":  state1Output["originalInput"],
		},
		map[string]interface{}{
			"state":          "State2",
			"processedValue": state2Output["processedValue"],
		},
	}

	state3Output := map[string]interface{}{
		"finalProcessedValue": finalValue,
		"processingChain":     processingChain,
		"aggregatedMetadata": map[string]interface{}{
			"totalStates":         3,
			"originalInput":       state1Output["originalInput"],
			"finalTransformation": "complete_workflow_processing",
		},
	}

	return map[string]interface{}{
		"requestId": event["requestId"],
		"executionSummary": map[string]interface{}{
			"totalStates":        3,
			"executionStatus":    "SUCCESS",
			"processingEndTime":  now,
			"dataFlowValidation": "PASSED",
		},
		"allStatesData": map[string]interface{}{
			"state1Output": state1Output,
			"state2Output": state2Output,
			"state3Output": state3Output,
		},
		"finalResult": map[string]interface{}{
			"success":         true,
			"finalValue":      finalValue,
			"processingChain": processingChain,
			"workflowMetadata": map[string]interface{}{
				"completedStates": []interface{}{"State1", "State2", "State3"},
				"dataIntegrity":   "VERIFIED",
			},
		},
		"stateMetadata": map[string]interface{}{
			"state":              "State3",
			"executionTime":      now,
			"functionName":       "local_test",
			"previousStates":     []interface{}{"State1", "State2"},
			"isWorkflowComplete": true,
		},
	}, nil
}

func validateState1Input(event map[string]interface{}) error {
	for _, field := range []string{"requestId", "inputData"} {
		if _, ok := event[field]; !ok {
			return &Error{State: "State1", Message: fmt.Sprintf("required field '%s' is missing from input", field)}
		}
	}

	inputData, ok := event["inputData"].(map[string]interface{})
	if !ok {
		return &Error{State: "State1", Message: "inputData must be a dictionary"}
	}
	if _, ok := inputData["value"]; !ok {
		return &Error{State: "State1", Message: "inputData must contain 'value' field"}
	}

	return nil
}

func validateState2Input(event map[string]interface{}) error {
	for _, field := range []string{"requestId", "state1Output", "stateMetadata"} {
		if _, ok := event[field]; !ok {
			return &Error{State: "State2", Message: fmt.Sprintf("required field '%s' is missing from State1 output", field)}
		}
	}

	state1Output, ok := event["state1Output"].(map[string]interface{})
	if !ok {
		return &Error{State: "State2", Message: "state1Output must be a dictionary"}
	}
	for _, field := range []string{"processedValue", "originalInput"} {
		if _, ok := state1Output[field]; !ok {
			return &Error{State: "State2", Message: fmt.Sprintf("required field '%s' is missing from state1Output", field)}
		}
	}

	if state, _ := validator.NestedValue(event, "stateMetadata.state"); state != "State1" {
		return &Error{State: "State2", Message: "invalid state metadata - expected State1"}
	}

	return nil
}

func validateState3Input(event map[string]interface{}) error {
	for _, field := range []string{"requestId", "state1Output", "state2Output", "stateMetadata"} {
		if _, ok := event[field]; !ok {
			return &Error{State: "State3", Message: fmt.Sprintf("required field '%s' is missing from State2 output", field)}
		}
	}

	state2Output, ok := event["state2Output"].(map[string]interface{})
	if !ok {
		return &Error{State: "State3", Message: "state2Output must be a dictionary"}
	}
	for _, field := range []string{"processedValue", "previousStateData"} {
		if _, ok := state2Output[field]; !ok {
			return &Error{State: "State3", Message: fmt.Sprintf("required field '%s' is missing from state2Output", field)}
		}
	}

	if state, _ := validator.NestedValue(event, "stateMetadata.state"); state != "State2" {
		return &Error{State: "State3", Message: "invalid state metadata - expected State2"}
	}

	return nil
}
