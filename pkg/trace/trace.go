// Package trace reconstructs the chronological data flow of a workflow
// execution from its raw event history.
package trace

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sfn"

	"github.com/tcmartin/sfnharness/pkg/logging"
)

// Marker records the start or end boundary of a workflow execution
type Marker struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// StateTransition is the paired enter/exit record for one named state
type StateTransition struct {
	StateName string     `json:"state_name"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	Input     string     `json:"input_data,omitempty"`
	Output    string     `json:"output_data,omitempty"`
}

// Closed reports whether the transition has a matching exit event.
func (t *StateTransition) Closed() bool {
	return t.ExitedAt != nil
}

// TimelineEntry is a lightweight record of one history event
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EventID   int64     `json:"event_id"`
}

// ErrorEvent records a failure or timeout observed in the history
type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EventID   int64     `json:"event_id"`
}

// Transformation summarizes how one state changed its payload
type Transformation struct {
	StateName      string   `json:"state_name"`
	Index          int      `json:"transformation_index"`
	InputSize      int      `json:"input_size"`
	OutputSize     int      `json:"output_size"`
	DataGrowth     int      `json:"data_growth"`
	ProcessingTime float64  `json:"processing_time"`
	AddedKeys      []string `json:"added_keys"`
	RemovedKeys    []string `json:"removed_keys"`
}

// DataFlowTrace is the derived view over one execution's event history
type DataFlowTrace struct {
	WorkflowStart       *Marker            `json:"workflow_start,omitempty"`
	WorkflowEnd         *Marker            `json:"workflow_end,omitempty"`
	StateTransitions    []*StateTransition `json:"state_transitions"`
	DataTransformations []Transformation   `json:"data_transformations"`
	Timeline            []TimelineEntry    `json:"execution_timeline"`
	ErrorEvents         []ErrorEvent       `json:"error_events"`
}

// Tracer builds data-flow traces from execution histories
type Tracer struct {
	logger *slog.Logger
}

// NewTracer creates a tracer.
func NewTracer(logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tracer{logger: logger}
}

// Trace walks the ordered event list once, pairing state enter/exit events,
// recording workflow boundaries and a full timeline, then derives a
// transformation summary per closed transition.
func (t *Tracer) Trace(events []*sfn.HistoryEvent) *DataFlowTrace {
	flow := &DataFlowTrace{
		StateTransitions:    []*StateTransition{},
		DataTransformations: []Transformation{},
		Timeline:            []TimelineEntry{},
		ErrorEvents:         []ErrorEvent{},
	}

	for _, event := range events {
		eventType := aws.StringValue(event.Type)
		timestamp := aws.TimeValue(event.Timestamp)
		eventID := aws.Int64Value(event.Id)

		switch eventType {
		case sfn.HistoryEventTypeExecutionStarted:
			marker := &Marker{Timestamp: timestamp}
			if details := event.ExecutionStartedEventDetails; details != nil {
				marker.Payload = aws.StringValue(details.Input)
			}
			flow.WorkflowStart = marker

		case sfn.HistoryEventTypeExecutionSucceeded:
			marker := &Marker{Timestamp: timestamp, Status: sfn.ExecutionStatusSucceeded}
			if details := event.ExecutionSucceededEventDetails; details != nil {
				marker.Payload = aws.StringValue(details.Output)
			}
			flow.WorkflowEnd = marker

		case sfn.HistoryEventTypeExecutionFailed:
			flow.WorkflowEnd = &Marker{Timestamp: timestamp, Status: sfn.ExecutionStatusFailed}

		case sfn.HistoryEventTypeExecutionAborted:
			flow.WorkflowEnd = &Marker{Timestamp: timestamp, Status: sfn.ExecutionStatusAborted}

		case sfn.HistoryEventTypeTaskStateEntered:
			transition := &StateTransition{EnteredAt: timestamp}
			if details := event.StateEnteredEventDetails; details != nil {
				transition.StateName = aws.StringValue(details.Name)
				transition.Input = aws.StringValue(details.Input)
			}
			flow.StateTransitions = append(flow.StateTransitions, transition)

		case sfn.HistoryEventTypeTaskStateExited:
			t.closeTransition(flow, event, timestamp)
		}

		if isErrorEventType(eventType) {
			flow.ErrorEvents = append(flow.ErrorEvents, ErrorEvent{
				Timestamp: timestamp,
				EventType: eventType,
				EventID:   eventID,
			})
		}

		flow.Timeline = append(flow.Timeline, TimelineEntry{
			Timestamp: timestamp,
			EventType: eventType,
			EventID:   eventID,
		})
	}

	flow.DataTransformations = t.analyzeTransformations(flow.StateTransitions)

	return flow
}

// closeTransition finds the most recent open transition for the exiting state
// and records its exit timestamp and output.
func (t *Tracer) closeTransition(flow *DataFlowTrace, event *sfn.HistoryEvent, timestamp time.Time) {
	details := event.StateExitedEventDetails
	if details == nil {
		return
	}
	stateName := aws.StringValue(details.Name)

	for i := len(flow.StateTransitions) - 1; i >= 0; i-- {
		transition := flow.StateTransitions[i]
		if transition.StateName == stateName && !transition.Closed() {
			exitedAt := timestamp
			transition.ExitedAt = &exitedAt
			transition.Output = aws.StringValue(details.Output)
			return
		}
	}
}

// analyzeTransformations derives per-state payload summaries. A malformed
// payload degrades to a logged warning for that one transition only.
func (t *Tracer) analyzeTransformations(transitions []*StateTransition) []Transformation {
	transformations := []Transformation{}

	for _, transition := range transitions {
		if transition.Input == "" || transition.Output == "" || !transition.Closed() {
			continue
		}

		var input, output map[string]interface{}
		if err := json.Unmarshal([]byte(transition.Input), &input); err != nil {
			t.logger.Warn("failed to analyze transformation", "state", transition.StateName, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(transition.Output), &output); err != nil {
			t.logger.Warn("failed to analyze transformation", "state", transition.StateName, "error", err)
			continue
		}

		added, removed := keyChanges(input, output)

		// Indices stay contiguous even when transitions are skipped.
		transformations = append(transformations, Transformation{
			StateName:      transition.StateName,
			Index:          len(transformations) + 1,
			InputSize:      len(transition.Input),
			OutputSize:     len(transition.Output),
			DataGrowth:     len(transition.Output) - len(transition.Input),
			ProcessingTime: transition.ExitedAt.Sub(transition.EnteredAt).Seconds(),
			AddedKeys:      added,
			RemovedKeys:    removed,
		})
	}

	return transformations
}

// keyChanges computes the symmetric difference of top-level keys.
func keyChanges(input, output map[string]interface{}) (added, removed []string) {
	added = []string{}
	removed = []string{}

	for key := range output {
		if _, ok := input[key]; !ok {
			added = append(added, key)
		}
	}
	for key := range input {
		if _, ok := output[key]; !ok {
			removed = append(removed, key)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func isErrorEventType(eventType string) bool {
	// ExecutionFailed, TaskFailed, LambdaFunctionFailed, *TimedOut and
	// friends all mark failures in the history.
	return strings.Contains(eventType, "Failed") || strings.Contains(eventType, "TimedOut")
}
