// Package monitor polls workflow executions to completion and reconstructs
// per-state inputs and outputs from the raw event history.
package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sfn"

	"github.com/tcmartin/sfnharness/pkg/client"
	"github.com/tcmartin/sfnharness/pkg/logging"
)

// API is the slice of the execution client the monitor needs.
type API interface {
	WaitForCompletion(executionARN string, timeout, pollInterval time.Duration) (*client.ExecutionStatus, error)
	GetExecutionHistory(executionARN string) ([]*sfn.HistoryEvent, error)
}

// Monitor observes one execution at a time until it terminates
type Monitor struct {
	api    API
	logger *slog.Logger

	// Timeout bounds the terminal-status wait
	Timeout time.Duration

	// PollInterval is the delay between describe calls
	PollInterval time.Duration
}

// FlowEntry is one observed state-boundary crossing
type FlowEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"eventType"`
	StateName string    `json:"stateName"`
	Data      string    `json:"data,omitempty"`
}

// Result holds everything observed while monitoring one execution. Fetch
// failures land in Errors instead of aborting, so partial results remain
// usable.
type Result struct {
	ExecutionARN string                    `json:"executionArn"`
	StartTime    time.Time                 `json:"startTime"`
	EndTime      time.Time                 `json:"endTime"`
	FinalStatus  *client.ExecutionStatus   `json:"finalStatus,omitempty"`
	Events       []*sfn.HistoryEvent       `json:"-"`
	StateOutputs map[string]client.Payload `json:"stateOutputs"`
	DataFlow     []FlowEntry               `json:"dataFlow"`
	Errors       []string                  `json:"errors"`
}

// NewMonitor creates a monitor with the default polling policy.
func NewMonitor(api API, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Monitor{
		api:          api,
		logger:       logger,
		Timeout:      300 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

// MonitorWithDetails waits for the execution to reach a terminal status, then
// fetches its history and extracts per-state outputs and the data-flow trace.
func (m *Monitor) MonitorWithDetails(executionARN string) *Result {
	result := &Result{
		ExecutionARN: executionARN,
		StartTime:    time.Now(),
		StateOutputs: map[string]client.Payload{},
		DataFlow:     []FlowEntry{},
		Errors:       []string{},
	}

	status, err := m.api.WaitForCompletion(executionARN, m.Timeout, m.PollInterval)
	if err != nil {
		m.logger.Error("failed to get final execution status", "arn", executionARN, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("failed to get final execution status: %v", err))
		result.EndTime = time.Now()
		return result
	}

	result.FinalStatus = status

	events, err := m.api.GetExecutionHistory(executionARN)
	if err != nil {
		m.logger.Error("failed to fetch execution history", "arn", executionARN, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("failed to fetch execution history: %v", err))
	} else {
		result.Events = events
		result.StateOutputs = extractStateOutputs(events)
		result.DataFlow = extractDataFlow(events)
	}

	result.EndTime = time.Now()
	return result
}

// extractStateOutputs maps each exited state to its parsed output payload.
func extractStateOutputs(events []*sfn.HistoryEvent) map[string]client.Payload {
	outputs := map[string]client.Payload{}

	for _, event := range events {
		if aws.StringValue(event.Type) != sfn.HistoryEventTypeTaskStateExited {
			continue
		}
		details := event.StateExitedEventDetails
		if details == nil {
			continue
		}

		name := aws.StringValue(details.Name)
		output := aws.StringValue(details.Output)
		if name == "" || output == "" {
			continue
		}

		outputs[name] = client.ParsePayload(output)
	}

	return outputs
}

// extractDataFlow records every task-state boundary crossing in history order.
func extractDataFlow(events []*sfn.HistoryEvent) []FlowEntry {
	flow := []FlowEntry{}

	for _, event := range events {
		eventType := aws.StringValue(event.Type)
		timestamp := aws.TimeValue(event.Timestamp)

		switch eventType {
		case sfn.HistoryEventTypeTaskStateEntered:
			entry := FlowEntry{Timestamp: timestamp, EventType: eventType}
			if details := event.StateEnteredEventDetails; details != nil {
				entry.StateName = aws.StringValue(details.Name)
				entry.Data = aws.StringValue(details.Input)
			}
			flow = append(flow, entry)

		case sfn.HistoryEventTypeTaskStateExited:
			entry := FlowEntry{Timestamp: timestamp, EventType: eventType}
			if details := event.StateExitedEventDetails; details != nil {
				entry.StateName = aws.StringValue(details.Name)
				entry.Data = aws.StringValue(details.Output)
			}
			flow = append(flow, entry)
		}
	}

	return flow
}
