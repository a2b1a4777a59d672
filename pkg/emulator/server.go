// Package emulator provides an in-process stand-in for Step Functions Local
// used by the test suite. It speaks enough of the AWS JSON 1.0 protocol for
// the real SDK client to run against an httptest server, and executes the
// three state handlers in sequence to synthesize a realistic event history.
package emulator

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/tcmartin/sfnharness/pkg/handlers"
)

const targetPrefix = "AWSStepFunctions."

// Special top-level input keys that steer the fake into non-success paths,
// which a real emulator would reach through broken handlers or slow states.
const (
	// KeySimulateRunning keeps the execution in RUNNING forever
	KeySimulateRunning = "simulateRunning"

	// KeySimulateFailureAt fails the execution at the named state
	KeySimulateFailureAt = "simulateFailureAt"
)

type stateMachineRecord struct {
	name       string
	arn        string
	definition string
	roleARN    string
	createdAt  time.Time
}

type historyEvent struct {
	id        int64
	timestamp time.Time
	eventType string
	// detailsKey/details carry the type-specific event payload, e.g.
	// stateEnteredEventDetails.
	detailsKey string
	details    map[string]interface{}
}

type executionRecord struct {
	arn             string
	name            string
	stateMachineARN string
	status          string
	input           string
	output          string
	startTime       time.Time
	stopTime        *time.Time
	events          []historyEvent
}

// Server is the fake emulator. Wrap Handler() in an httptest server and point
// a client at its URL.
type Server struct {
	mu            sync.Mutex
	router        *mux.Router
	stateMachines map[string]*stateMachineRecord
	executions    map[string]*executionRecord
}

// New creates a fake emulator with no state machines registered.
func New() *Server {
	s := &Server{
		stateMachines: map[string]*stateMachineRecord{},
		executions:    map[string]*executionRecord{},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.dispatch).Methods(http.MethodPost)
	return s
}

// Handler returns the HTTP handler implementing the control API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// dispatch routes a request by its X-Amz-Target header.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	if !strings.HasPrefix(target, targetPrefix) {
		writeError(w, "UnknownOperationException", "unrecognized target "+target)
		return
	}
	operation := strings.TrimPrefix(target, targetPrefix)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "InvalidRequest", "failed to read request body")
		return
	}

	var request map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &request); err != nil {
			writeError(w, "InvalidRequest", "request body is not valid JSON")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch operation {
	case "CreateStateMachine":
		s.createStateMachine(w, request)
	case "ListStateMachines":
		s.listStateMachines(w)
	case "DescribeStateMachine":
		s.describeStateMachine(w, request)
	case "StartExecution":
		s.startExecution(w, request)
	case "DescribeExecution":
		s.describeExecution(w, request)
	case "GetExecutionHistory":
		s.getExecutionHistory(w, request)
	case "StopExecution":
		s.stopExecution(w, request)
	case "ListExecutions":
		s.listExecutions(w, request)
	default:
		writeError(w, "UnknownOperationException", "unsupported operation "+operation)
	}
}

func (s *Server) createStateMachine(w http.ResponseWriter, request map[string]interface{}) {
	name, _ := request["name"].(string)
	definition, _ := request["definition"].(string)
	roleARN, _ := request["roleArn"].(string)

	arn := fmt.Sprintf("arn:aws:states:us-east-1:123456789012:stateMachine:%s", name)
	if _, exists := s.stateMachines[arn]; exists {
		writeError(w, "StateMachineAlreadyExists", fmt.Sprintf("State Machine Already Exists: '%s'", arn))
		return
	}

	record := &stateMachineRecord{
		name:       name,
		arn:        arn,
		definition: definition,
		roleARN:    roleARN,
		createdAt:  time.Now(),
	}
	s.stateMachines[arn] = record

	writeJSON(w, map[string]interface{}{
		"stateMachineArn": arn,
		"creationDate":    epoch(record.createdAt),
	})
}

func (s *Server) listStateMachines(w http.ResponseWriter) {
	machines := []map[string]interface{}{}
	for _, record := range s.stateMachines {
		machines = append(machines, map[string]interface{}{
			"name":            record.name,
			"stateMachineArn": record.arn,
			"type":            "STANDARD",
			"creationDate":    epoch(record.createdAt),
		})
	}
	writeJSON(w, map[string]interface{}{"stateMachines": machines})
}

func (s *Server) describeStateMachine(w http.ResponseWriter, request map[string]interface{}) {
	arn, _ := request["stateMachineArn"].(string)
	record, ok := s.stateMachines[arn]
	if !ok {
		writeError(w, "StateMachineDoesNotExist", fmt.Sprintf("State Machine Does Not Exist: '%s'", arn))
		return
	}

	writeJSON(w, map[string]interface{}{
		"name":            record.name,
		"stateMachineArn": record.arn,
		"status":          "ACTIVE",
		"definition":      record.definition,
		"roleArn":         record.roleARN,
		"type":            "STANDARD",
		"creationDate":    epoch(record.createdAt),
	})
}

func (s *Server) startExecution(w http.ResponseWriter, request map[string]interface{}) {
	stateMachineARN, _ := request["stateMachineArn"].(string)
	name, _ := request["name"].(string)
	input, _ := request["input"].(string)

	if _, ok := s.stateMachines[stateMachineARN]; !ok {
		writeError(w, "StateMachineDoesNotExist", fmt.Sprintf("State Machine Does Not Exist: '%s'", stateMachineARN))
		return
	}

	arn := fmt.Sprintf("arn:aws:states:us-east-1:123456789012:execution:%s:%s",
		stateMachineARN[strings.LastIndex(stateMachineARN, ":")+1:], name)
	if _, exists := s.executions[arn]; exists {
		writeError(w, "ExecutionAlreadyExists", fmt.Sprintf("Execution Already Exists: '%s'", arn))
		return
	}

	execution := &executionRecord{
		arn:             arn,
		name:            name,
		stateMachineARN: stateMachineARN,
		status:          "RUNNING",
		input:           input,
		startTime:       time.Now(),
	}
	s.executions[arn] = execution

	s.runWorkflow(execution)

	writeJSON(w, map[string]interface{}{
		"executionArn": arn,
		"startDate":    epoch(execution.startTime),
	})
}

// runWorkflow executes the three handlers synchronously and records the
// event history the real emulator would produce.
func (s *Server) runWorkflow(execution *executionRecord) {
	// Event timestamps advance by a fixed step so processing times and
	// ordering are deterministic in tests.
	clock := execution.startTime
	tick := func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	}

	addEvent := func(eventType, detailsKey string, details map[string]interface{}) {
		execution.events = append(execution.events, historyEvent{
			id:         int64(len(execution.events) + 1),
			timestamp:  tick(),
			eventType:  eventType,
			detailsKey: detailsKey,
			details:    details,
		})
	}

	finish := func(status string) {
		stop := clock
		execution.stopTime = &stop
		execution.status = status
	}

	addEvent("ExecutionStarted", "executionStartedEventDetails",
		map[string]interface{}{"input": execution.input})

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(execution.input), &payload); err != nil {
		addEvent("ExecutionFailed", "executionFailedEventDetails",
			map[string]interface{}{"error": "States.Runtime", "cause": "invalid execution input"})
		finish("FAILED")
		return
	}

	if simulate, _ := payload[KeySimulateRunning].(bool); simulate {
		return
	}
	failAt, _ := payload[KeySimulateFailureAt].(string)

	stages := []struct {
		name    string
		handler func(map[string]interface{}) (map[string]interface{}, error)
	}{
		{"State1", handlers.State1},
		{"State2", handlers.State2},
		{"State3", handlers.State3},
	}

	current := payload
	for _, stage := range stages {
		inputJSON, _ := json.Marshal(current)
		addEvent("TaskStateEntered", "stateEnteredEventDetails",
			map[string]interface{}{"name": stage.name, "input": string(inputJSON)})

		if stage.name == failAt {
			addEvent("ExecutionFailed", "executionFailedEventDetails",
				map[string]interface{}{"error": "SimulatedFailure", "cause": "failure injected at " + stage.name})
			finish("FAILED")
			return
		}

		output, err := stage.handler(current)
		if err != nil {
			addEvent("ExecutionFailed", "executionFailedEventDetails",
				map[string]interface{}{"error": stage.name + "ExecutionError", "cause": err.Error()})
			finish("FAILED")
			return
		}

		outputJSON, _ := json.Marshal(output)
		addEvent("TaskStateExited", "stateExitedEventDetails",
			map[string]interface{}{"name": stage.name, "output": string(outputJSON)})
		current = output
	}

	finalJSON, _ := json.Marshal(current)
	execution.output = string(finalJSON)
	addEvent("ExecutionSucceeded", "executionSucceededEventDetails",
		map[string]interface{}{"output": execution.output})
	finish("SUCCEEDED")
}

func (s *Server) describeExecution(w http.ResponseWriter, request map[string]interface{}) {
	arn, _ := request["executionArn"].(string)
	execution, ok := s.executions[arn]
	if !ok {
		writeError(w, "ExecutionDoesNotExist", fmt.Sprintf("Execution Does Not Exist: '%s'", arn))
		return
	}

	response := map[string]interface{}{
		"executionArn":    execution.arn,
		"stateMachineArn": execution.stateMachineARN,
		"name":            execution.name,
		"status":          execution.status,
		"startDate":       epoch(execution.startTime),
		"input":           execution.input,
	}
	if execution.stopTime != nil {
		response["stopDate"] = epoch(*execution.stopTime)
	}
	if execution.output != "" {
		response["output"] = execution.output
	}

	writeJSON(w, response)
}

func (s *Server) getExecutionHistory(w http.ResponseWriter, request map[string]interface{}) {
	arn, _ := request["executionArn"].(string)
	execution, ok := s.executions[arn]
	if !ok {
		writeError(w, "ExecutionDoesNotExist", fmt.Sprintf("Execution Does Not Exist: '%s'", arn))
		return
	}

	events := []map[string]interface{}{}
	for _, event := range execution.events {
		entry := map[string]interface{}{
			"id":              event.id,
			"previousEventId": event.id - 1,
			"timestamp":       epoch(event.timestamp),
			"type":            event.eventType,
		}
		if event.detailsKey != "" {
			entry[event.detailsKey] = event.details
		}
		events = append(events, entry)
	}

	writeJSON(w, map[string]interface{}{"events": events})
}

func (s *Server) stopExecution(w http.ResponseWriter, request map[string]interface{}) {
	arn, _ := request["executionArn"].(string)
	execution, ok := s.executions[arn]
	if !ok {
		writeError(w, "ExecutionDoesNotExist", fmt.Sprintf("Execution Does Not Exist: '%s'", arn))
		return
	}

	if execution.status == "RUNNING" {
		stop := time.Now()
		execution.stopTime = &stop
		execution.status = "ABORTED"
		execution.events = append(execution.events, historyEvent{
			id:        int64(len(execution.events) + 1),
			timestamp: stop,
			eventType: "ExecutionAborted",
		})
	}

	writeJSON(w, map[string]interface{}{"stopDate": epoch(time.Now())})
}

func (s *Server) listExecutions(w http.ResponseWriter, request map[string]interface{}) {
	stateMachineARN, _ := request["stateMachineArn"].(string)
	statusFilter, _ := request["statusFilter"].(string)

	executions := []map[string]interface{}{}
	for _, execution := range s.executions {
		if execution.stateMachineARN != stateMachineARN {
			continue
		}
		if statusFilter != "" && execution.status != statusFilter {
			continue
		}

		entry := map[string]interface{}{
			"executionArn":    execution.arn,
			"stateMachineArn": execution.stateMachineARN,
			"name":            execution.name,
			"status":          execution.status,
			"startDate":       epoch(execution.startTime),
		}
		if execution.stopTime != nil {
			entry["stopDate"] = epoch(*execution.stopTime)
		}
		executions = append(executions, entry)
	}

	writeJSON(w, map[string]interface{}{"executions": executions})
}

// epoch renders a timestamp the way the AWS JSON protocol expects dates:
// seconds since the Unix epoch, fractional part allowed.
func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeJSON(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"__type":  code,
		"message": message,
	})
}
