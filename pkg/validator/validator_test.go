package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflowInput() map[string]interface{} {
	return map[string]interface{}{
		"requestId": "test-001",
		"inputData": map[string]interface{}{
			"value":     "payload",
			"timestamp": "2024-01-01T00:00:00Z",
			"metadata":  map[string]interface{}{"source": "test"},
		},
	}
}

func validState1Output() map[string]interface{} {
	return map[string]interface{}{
		"requestId": "test-001",
		"state1Output": map[string]interface{}{
			"processedValue": "State1_processed_payload",
			"originalInput":  "payload",
		},
		"stateMetadata": map[string]interface{}{
			"state":         "State1",
			"executionTime": "2024-01-01T00:00:01Z",
		},
	}
}

func validState2Output() map[string]interface{} {
	s1 := validState1Output()["state1Output"]
	return map[string]interface{}{
		"requestId":    "test-001",
		"state1Output": s1,
		"state2Output": map[string]interface{}{
			"processedValue":    "State2_enhanced_State1_processed_payload",
			"previousStateData": s1,
			"enhancementData":   map[string]interface{}{"enhancementType": "data_enrichment"},
		},
		"stateMetadata": map[string]interface{}{
			"state":         "State2",
			"executionTime": "2024-01-01T00:00:02Z",
		},
		"dataFlow": map[string]interface{}{
			"inputSource":        "State1",
			"outputDestination":  "State3",
			"dataTransformation": "enhancement_and_enrichment",
		},
	}
}

func validState3Output() map[string]interface{} {
	s2 := validState2Output()
	return map[string]interface{}{
		"requestId": "test-001",
		"executionSummary": map[string]interface{}{
			"totalStates":     3,
			"executionStatus": "SUCCESS",
		},
		"allStatesData": map[string]interface{}{
			"state1Output": s2["state1Output"],
			"state2Output": s2["state2Output"],
			"state3Output": map[string]interface{}{"finalProcessedValue": "State3_final_State2_enhanced_State1_processed_payload"},
		},
		"finalResult": map[string]interface{}{
			"success":         true,
			"finalValue":      "State3_final_State2_enhanced_State1_processed_payload",
			"processingChain": []interface{}{},
		},
		"stateMetadata": map[string]interface{}{
			"state":         "State3",
			"executionTime": "2024-01-01T00:00:03Z",
		},
	}
}

func TestValidateWorkflowInput(t *testing.T) {
	v := NewInputOutputValidator(nil)

	t.Run("accepts a valid input", func(t *testing.T) {
		result := v.ValidateWorkflowInput(validWorkflowInput())
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		assert.NotNil(t, result.ValidatedData)
	})

	t.Run("reports a missing requestId", func(t *testing.T) {
		input := validWorkflowInput()
		delete(input, "requestId")

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Required field 'requestId' is missing")
	})

	t.Run("rejects an empty requestId", func(t *testing.T) {
		input := validWorkflowInput()
		input["requestId"] = "   "

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "requestId must be a non-empty string")
	})

	t.Run("rejects a non-string requestId", func(t *testing.T) {
		input := validWorkflowInput()
		input["requestId"] = 12345

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
	})

	t.Run("reports inputData missing the value field", func(t *testing.T) {
		input := validWorkflowInput()
		input["inputData"] = map[string]interface{}{"timestamp": "2024-01-01T00:00:00Z"}

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "inputData must contain 'value' field")
	})

	t.Run("rejects a non-object inputData", func(t *testing.T) {
		input := validWorkflowInput()
		input["inputData"] = "not a map"

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "inputData must be a dictionary")
	})

	t.Run("rejects a non-object metadata", func(t *testing.T) {
		input := validWorkflowInput()
		input["inputData"].(map[string]interface{})["metadata"] = "nope"

		result := v.ValidateWorkflowInput(input)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "metadata must be a dictionary")
	})

	t.Run("invalid result carries no validated data", func(t *testing.T) {
		result := v.ValidateWorkflowInput(map[string]interface{}{})
		assert.False(t, result.IsValid)
		assert.Nil(t, result.ValidatedData)
	})
}

func TestValidateState1Output(t *testing.T) {
	v := NewInputOutputValidator(nil)

	t.Run("accepts a valid output", func(t *testing.T) {
		result := v.ValidateState1Output(validState1Output())
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Warnings)
	})

	t.Run("reports a missing state1Output section", func(t *testing.T) {
		output := validState1Output()
		delete(output, "state1Output")

		result := v.ValidateState1Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Required field 'state1Output' is missing from State1 output")
	})

	t.Run("warns on an unexpected prefix", func(t *testing.T) {
		output := validState1Output()
		output["state1Output"].(map[string]interface{})["processedValue"] = "unexpected_payload"

		result := v.ValidateState1Output(output)
		assert.True(t, result.IsValid)
		assert.Contains(t, result.Warnings, "processedValue does not follow expected naming pattern")
	})

	t.Run("rejects a non-string processedValue", func(t *testing.T) {
		output := validState1Output()
		output["state1Output"].(map[string]interface{})["processedValue"] = 7

		result := v.ValidateState1Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "processedValue must be a string")
	})

	t.Run("rejects wrong state metadata", func(t *testing.T) {
		output := validState1Output()
		output["stateMetadata"].(map[string]interface{})["state"] = "State2"

		result := v.ValidateState1Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Expected state 'State1', got 'State2'")
	})
}

func TestValidateState2Output(t *testing.T) {
	v := NewInputOutputValidator(nil)

	t.Run("accepts a valid output", func(t *testing.T) {
		result := v.ValidateState2Output(validState2Output())
		assert.True(t, result.IsValid)
	})

	t.Run("detects unpreserved state1 data", func(t *testing.T) {
		output := validState2Output()
		output["state1Output"] = map[string]interface{}{"wrong": true}

		result := v.ValidateState2Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "State1 output data is not properly preserved in State2 output")
	})

	t.Run("reports missing dataFlow fields", func(t *testing.T) {
		output := validState2Output()
		output["dataFlow"] = map[string]interface{}{"inputSource": "State1"}

		result := v.ValidateState2Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "DataFlow missing required field: outputDestination")
		assert.Contains(t, result.Errors, "DataFlow missing required field: dataTransformation")
	})
}

func TestValidateState3Output(t *testing.T) {
	v := NewInputOutputValidator(nil)

	t.Run("accepts a valid output", func(t *testing.T) {
		result := v.ValidateState3Output(validState3Output())
		assert.True(t, result.IsValid, "errors: %v", result.Errors)
	})

	t.Run("rejects a wrong state count", func(t *testing.T) {
		output := validState3Output()
		output["executionSummary"].(map[string]interface{})["totalStates"] = 2

		result := v.ValidateState3Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Expected 3 total states, got 2")
	})

	t.Run("accepts a float state count from JSON decoding", func(t *testing.T) {
		output := validState3Output()
		output["executionSummary"].(map[string]interface{})["totalStates"] = float64(3)

		result := v.ValidateState3Output(output)
		assert.True(t, result.IsValid)
	})

	t.Run("reports missing allStatesData entries", func(t *testing.T) {
		output := validState3Output()
		output["allStatesData"] = map[string]interface{}{"state1Output": map[string]interface{}{}}

		result := v.ValidateState3Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "All states data missing: state2Output")
		assert.Contains(t, result.Errors, "All states data missing: state3Output")
	})

	t.Run("rejects a non-boolean success flag", func(t *testing.T) {
		output := validState3Output()
		output["finalResult"].(map[string]interface{})["success"] = "true"

		result := v.ValidateState3Output(output)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "success field must be boolean")
	})
}

func TestValidateContinuity(t *testing.T) {
	v := NewDataFlowValidator(nil)

	chain := func() (map[string]interface{}, map[string]interface{}, map[string]interface{}, map[string]interface{}) {
		return validWorkflowInput(), validState1Output(), validState2Output(), validState3Output()
	}

	t.Run("passes for a consistent chain", func(t *testing.T) {
		input, s1, s2, s3 := chain()
		result := v.ValidateContinuity(input, s1, s2, s3)
		assert.True(t, result.IsValid, "errors: %v", result.Errors)
	})

	t.Run("detects a changed requestId", func(t *testing.T) {
		input, s1, s2, s3 := chain()
		s2["requestId"] = "someone-else"

		result := v.ValidateContinuity(input, s1, s2, s3)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "requestId is not consistent across all states")
	})

	t.Run("detects lost original data", func(t *testing.T) {
		input, s1, s2, s3 := chain()
		s1["state1Output"].(map[string]interface{})["originalInput"] = "tampered"

		result := v.ValidateContinuity(input, s1, s2, s3)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "Original input data is not properly preserved through the workflow")
	})

	t.Run("reports an incorrect transformation with expected and got", func(t *testing.T) {
		input, s1, s2, s3 := chain()
		s1["state1Output"].(map[string]interface{})["processedValue"] = "State1_processed_wrong"

		result := v.ValidateContinuity(input, s1, s2, s3)
		require.False(t, result.IsValid)
		assert.Contains(t, result.Errors,
			"State1 transformation incorrect. Expected: State1_processed_payload, Got: State1_processed_wrong")
	})

	t.Run("checks every stage of the chain", func(t *testing.T) {
		input, s1, s2, s3 := chain()
		s3["finalResult"].(map[string]interface{})["finalValue"] = "State3_final_oops"

		result := v.ValidateContinuity(input, s1, s2, s3)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors,
			"State3 transformation incorrect. Expected: State3_final_State2_enhanced_State1_processed_payload, Got: State3_final_oops")
	})
}

func TestNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": 42},
			"s": "leaf",
		},
	}

	t.Run("finds nested values", func(t *testing.T) {
		value, ok := NestedValue(data, "a.b.c")
		require.True(t, ok)
		assert.Equal(t, 42, value)
	})

	t.Run("finds top-level values", func(t *testing.T) {
		value, ok := NestedValue(data, "a")
		require.True(t, ok)
		assert.NotNil(t, value)
	})

	t.Run("reports missing paths", func(t *testing.T) {
		_, ok := NestedValue(data, "a.b.missing")
		assert.False(t, ok)
	})

	t.Run("reports traversal through a leaf", func(t *testing.T) {
		_, ok := NestedValue(data, "a.s.deeper")
		assert.False(t, ok)
	})

	t.Run("handles nil maps", func(t *testing.T) {
		_, ok := NestedValue(nil, "a.b")
		assert.False(t, ok)
	})
}

func TestAssertHelpers(t *testing.T) {
	t.Run("AssertValidationPassed", func(t *testing.T) {
		assert.NoError(t, AssertValidationPassed(newResult(nil, nil), "input"))
		err := AssertValidationPassed(newResult([]string{"bad"}, nil), "input")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
	})

	t.Run("AssertFieldEquals", func(t *testing.T) {
		data := map[string]interface{}{"x": map[string]interface{}{"y": "v"}}
		assert.NoError(t, AssertFieldEquals(data, "x.y", "v"))
		assert.Error(t, AssertFieldEquals(data, "x.y", "other"))
		assert.Error(t, AssertFieldEquals(data, "x.missing", "v"))
	})

	t.Run("AssertFieldContains", func(t *testing.T) {
		data := map[string]interface{}{"value": "State1_processed_hello"}
		assert.NoError(t, AssertFieldContains(data, "value", "processed"))
		assert.Error(t, AssertFieldContains(data, "value", "absent"))
	})
}
