package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/sfnharness/pkg/validator"
)

func workflowInput(requestID, value string) map[string]interface{} {
	return map[string]interface{}{
		"requestId": requestID,
		"inputData": map[string]interface{}{
			"value":     value,
			"timestamp": "2024-01-01T00:00:00Z",
		},
	}
}

func TestState1(t *testing.T) {
	t.Run("prefixes the input value", func(t *testing.T) {
		output, err := State1(workflowInput("req-1", "hello"))
		require.NoError(t, err)

		processed, ok := validator.NestedValue(output, "state1Output.processedValue")
		require.True(t, ok)
		assert.Equal(t, "State1_processed_hello", processed)
	})

	t.Run("preserves the request id", func(t *testing.T) {
		output, err := State1(workflowInput("req-42", "hello"))
		require.NoError(t, err)
		assert.Equal(t, "req-42", output["requestId"])
	})

	t.Run("keeps the original input value", func(t *testing.T) {
		output, err := State1(workflowInput("req-1", "hello"))
		require.NoError(t, err)

		original, ok := validator.NestedValue(output, "state1Output.originalInput")
		require.True(t, ok)
		assert.Equal(t, "hello", original)
	})

	t.Run("records state metadata", func(t *testing.T) {
		output, err := State1(workflowInput("req-1", "hello"))
		require.NoError(t, err)

		state, ok := validator.NestedValue(output, "stateMetadata.state")
		require.True(t, ok)
		assert.Equal(t, "State1", state)
	})

	t.Run("rejects input without a value field", func(t *testing.T) {
		_, err := State1(map[string]interface{}{
			"requestId": "req-1",
			"inputData": map[string]interface{}{},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "value")
	})

	t.Run("rejects input without inputData", func(t *testing.T) {
		_, err := State1(map[string]interface{}{"requestId": "req-1"})
		require.Error(t, err)
	})
}

func TestState2(t *testing.T) {
	s1 := func(t *testing.T) map[string]interface{} {
		t.Helper()
		output, err := State1(workflowInput("req-1", "hello"))
		require.NoError(t, err)
		return output
	}

	t.Run("enhances the processed value", func(t *testing.T) {
		output, err := State2(s1(t))
		require.NoError(t, err)

		enhanced, ok := validator.NestedValue(output, "state2Output.processedValue")
		require.True(t, ok)
		assert.Equal(t, "State2_enhanced_State1_processed_hello", enhanced)
	})

	t.Run("carries state1 output forward verbatim", func(t *testing.T) {
		output, err := State2(s1(t))
		require.NoError(t, err)

		original, ok := validator.NestedValue(output, "state1Output.originalInput")
		require.True(t, ok)
		assert.Equal(t, "hello", original)

		previous, ok := validator.NestedValue(output, "state2Output.previousStateData.originalInput")
		require.True(t, ok)
		assert.Equal(t, "hello", previous)
	})

	t.Run("records the data flow chain", func(t *testing.T) {
		output, err := State2(s1(t))
		require.NoError(t, err)

		source, ok := validator.NestedValue(output, "dataFlow.inputSource")
		require.True(t, ok)
		assert.Equal(t, "State1", source)

		destination, ok := validator.NestedValue(output, "dataFlow.outputDestination")
		require.True(t, ok)
		assert.Equal(t, "State3", destination)
	})

	t.Run("rejects input not produced by state1", func(t *testing.T) {
		_, err := State2(workflowInput("req-1", "hello"))
		require.Error(t, err)
	})

	t.Run("rejects mismatched state metadata", func(t *testing.T) {
		event := s1(t)
		event["stateMetadata"].(map[string]interface{})["state"] = "State2"
		_, err := State2(event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected State1")
	})
}

func TestState3(t *testing.T) {
	chain := func(t *testing.T, value string) map[string]interface{} {
		t.Helper()
		s1, err := State1(workflowInput("req-1", value))
		require.NoError(t, err)
		s2, err := State2(s1)
		require.NoError(t, err)
		s3, err := State3(s2)
		require.NoError(t, err)
		return s3
	}

	t.Run("builds the full transformation chain", func(t *testing.T) {
		output := chain(t, "hello")

		final, ok := validator.NestedValue(output, "finalResult.finalValue")
		require.True(t, ok)
		assert.Equal(t, "State3_final_State2_enhanced_State1_processed_hello", final)
	})

	t.Run("summarizes the execution", func(t *testing.T) {
		output := chain(t, "hello")

		total, ok := validator.NestedValue(output, "executionSummary.totalStates")
		require.True(t, ok)
		assert.EqualValues(t, 3, total)

		status, ok := validator.NestedValue(output, "executionSummary.executionStatus")
		require.True(t, ok)
		assert.Equal(t, "SUCCESS", status)
	})

	t.Run("reports a successful final result", func(t *testing.T) {
		output := chain(t, "hello")

		success, ok := validator.NestedValue(output, "finalResult.success")
		require.True(t, ok)
		assert.Equal(t, true, success)
	})

	t.Run("preserves all prior state data", func(t *testing.T) {
		output := chain(t, "hello")

		value, ok := validator.NestedValue(output, "allStatesData.state1Output.originalInput")
		require.True(t, ok)
		assert.Equal(t, "hello", value)
	})

	t.Run("marks the workflow complete", func(t *testing.T) {
		output := chain(t, "hello")

		complete, ok := validator.NestedValue(output, "stateMetadata.isWorkflowComplete")
		require.True(t, ok)
		assert.Equal(t, true, complete)
	})

	t.Run("handles a minimal value", func(t *testing.T) {
		output := chain(t, "min")

		final, ok := validator.NestedValue(output, "finalResult.finalValue")
		require.True(t, ok)
		assert.Equal(t, "State3_final_State2_enhanced_State1_processed_min", final)
	})

	t.Run("handles special characters", func(t *testing.T) {
		output := chain(t, "data with spaces & symbols!")

		final, ok := validator.NestedValue(output, "finalResult.finalValue")
		require.True(t, ok)
		assert.Equal(t, "State3_final_State2_enhanced_State1_processed_data with spaces & symbols!", final)
	})

	t.Run("rejects input not produced by state2", func(t *testing.T) {
		s1, err := State1(workflowInput("req-1", "hello"))
		require.NoError(t, err)
		_, err = State3(s1)
		require.Error(t, err)
	})
}

func TestErrorType(t *testing.T) {
	err := &Error{State: "State1", Message: "boom"}
	assert.Contains(t, err.Error(), "State1")
	assert.Contains(t, err.Error(), "boom")
}

// The validators used by downstream states and the ones applied to captured
// outputs must agree on the handler output shapes.
func TestHandlerOutputsSatisfyValidators(t *testing.T) {
	v := validator.NewInputOutputValidator(nil)

	s1, err := State1(workflowInput("req-9", "payload"))
	require.NoError(t, err)
	result := v.ValidateState1Output(s1)
	assert.True(t, result.IsValid, "state1 output failed validation: %v", result.Errors)

	s2, err := State2(s1)
	require.NoError(t, err)
	result = v.ValidateState2Output(s2)
	assert.True(t, result.IsValid, "state2 output failed validation: %v", result.Errors)

	s3, err := State3(s2)
	require.NoError(t, err)
	result = v.ValidateState3Output(s3)
	assert.True(t, result.IsValid, "state3 output failed validation: %v", result.Errors)

	flow := validator.NewDataFlowValidator(nil)
	continuity := flow.ValidateContinuity(workflowInput("req-9", "payload"), s1, s2, s3)
	assert.True(t, continuity.IsValid, "continuity failed: %v", continuity.Errors)
}
