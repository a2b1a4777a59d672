package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/sfnharness/pkg/client"
)

type stubAPI struct {
	status     *client.ExecutionStatus
	statusErr  error
	events     []*sfn.HistoryEvent
	historyErr error
}

func (s *stubAPI) WaitForCompletion(executionARN string, timeout, pollInterval time.Duration) (*client.ExecutionStatus, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *stubAPI) GetExecutionHistory(executionARN string) ([]*sfn.HistoryEvent, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.events, nil
}

func stateEvents() []*sfn.HistoryEvent {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return []*sfn.HistoryEvent{
		{
			Id:        aws.Int64(1),
			Timestamp: aws.Time(base),
			Type:      aws.String(sfn.HistoryEventTypeExecutionStarted),
		},
		{
			Id:        aws.Int64(2),
			Timestamp: aws.Time(base.Add(time.Second)),
			Type:      aws.String(sfn.HistoryEventTypeTaskStateEntered),
			StateEnteredEventDetails: &sfn.StateEnteredEventDetails{
				Name:  aws.String("State1"),
				Input: aws.String(`{"requestId":"r1"}`),
			},
		},
		{
			Id:        aws.Int64(3),
			Timestamp: aws.Time(base.Add(2 * time.Second)),
			Type:      aws.String(sfn.HistoryEventTypeTaskStateExited),
			StateExitedEventDetails: &sfn.StateExitedEventDetails{
				Name:   aws.String("State1"),
				Output: aws.String(`{"requestId":"r1","state1Output":{"processedValue":"State1_processed_x"}}`),
			},
		},
		{
			Id:        aws.Int64(4),
			Timestamp: aws.Time(base.Add(3 * time.Second)),
			Type:      aws.String(sfn.HistoryEventTypeExecutionSucceeded),
		},
	}
}

func TestMonitorWithDetails(t *testing.T) {
	t.Run("collects status, outputs and data flow", func(t *testing.T) {
		api := &stubAPI{
			status: &client.ExecutionStatus{
				ExecutionARN: "arn:execution",
				Status:       sfn.ExecutionStatusSucceeded,
			},
			events: stateEvents(),
		}

		result := NewMonitor(api, nil).MonitorWithDetails("arn:execution")

		require.Empty(t, result.Errors)
		require.NotNil(t, result.FinalStatus)
		assert.Equal(t, sfn.ExecutionStatusSucceeded, result.FinalStatus.Status)
		assert.Len(t, result.Events, 4)

		output, ok := result.StateOutputs["State1"]
		require.True(t, ok)
		require.True(t, output.IsStructured())
		assert.Equal(t, "r1", output.Structured()["requestId"])

		require.Len(t, result.DataFlow, 2)
		assert.Equal(t, sfn.HistoryEventTypeTaskStateEntered, result.DataFlow[0].EventType)
		assert.Equal(t, sfn.HistoryEventTypeTaskStateExited, result.DataFlow[1].EventType)
		assert.Equal(t, "State1", result.DataFlow[0].StateName)
	})

	t.Run("records a wait failure and stops", func(t *testing.T) {
		api := &stubAPI{statusErr: fmt.Errorf("boom")}

		result := NewMonitor(api, nil).MonitorWithDetails("arn:execution")

		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "failed to get final execution status")
		assert.Nil(t, result.FinalStatus)
		assert.Empty(t, result.StateOutputs)
	})

	t.Run("keeps the final status when history fetch fails", func(t *testing.T) {
		api := &stubAPI{
			status: &client.ExecutionStatus{
				ExecutionARN: "arn:execution",
				Status:       sfn.ExecutionStatusSucceeded,
			},
			historyErr: fmt.Errorf("history unavailable"),
		}

		result := NewMonitor(api, nil).MonitorWithDetails("arn:execution")

		require.NotNil(t, result.FinalStatus)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "failed to fetch execution history")
	})

	t.Run("skips unparseable state outputs gracefully", func(t *testing.T) {
		events := stateEvents()
		events[2].StateExitedEventDetails.Output = aws.String("not json")

		api := &stubAPI{
			status: &client.ExecutionStatus{Status: sfn.ExecutionStatusSucceeded},
			events: events,
		}

		result := NewMonitor(api, nil).MonitorWithDetails("arn:execution")

		output, ok := result.StateOutputs["State1"]
		require.True(t, ok)
		assert.False(t, output.IsStructured())
		assert.Equal(t, "not json", output.Raw())
	})
}

func TestExtractStateOutputs(t *testing.T) {
	t.Run("ignores exit events without details", func(t *testing.T) {
		events := []*sfn.HistoryEvent{
			{
				Id:        aws.Int64(1),
				Timestamp: aws.Time(time.Now()),
				Type:      aws.String(sfn.HistoryEventTypeTaskStateExited),
			},
		}
		assert.Empty(t, extractStateOutputs(events))
	})

	t.Run("keeps the last output per state name", func(t *testing.T) {
		now := time.Now()
		events := []*sfn.HistoryEvent{
			{
				Id:        aws.Int64(1),
				Timestamp: aws.Time(now),
				Type:      aws.String(sfn.HistoryEventTypeTaskStateExited),
				StateExitedEventDetails: &sfn.StateExitedEventDetails{
					Name:   aws.String("State1"),
					Output: aws.String(`{"attempt":1}`),
				},
			},
			{
				Id:        aws.Int64(2),
				Timestamp: aws.Time(now.Add(time.Second)),
				Type:      aws.String(sfn.HistoryEventTypeTaskStateExited),
				StateExitedEventDetails: &sfn.StateExitedEventDetails{
					Name:   aws.String("State1"),
					Output: aws.String(`{"attempt":2}`),
				},
			},
		}

		outputs := extractStateOutputs(events)
		require.Len(t, outputs, 1)
		assert.EqualValues(t, float64(2), outputs["State1"].Structured()["attempt"])
	})
}
