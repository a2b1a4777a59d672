// Package client provides a thin wrapper around the Step Functions Local
// control API.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/google/uuid"

	"github.com/tcmartin/sfnharness/pkg/logging"
)

// ErrConnection indicates the emulator could not be reached at all, as
// opposed to the emulator rejecting a request.
var ErrConnection = errors.New("step functions local unreachable")

// TerminalStatuses are the execution statuses after which no further
// transitions occur.
var TerminalStatuses = []string{
	sfn.ExecutionStatusSucceeded,
	sfn.ExecutionStatusFailed,
	sfn.ExecutionStatusTimedOut,
	sfn.ExecutionStatusAborted,
}

// IsTerminalStatus reports whether an execution status is terminal.
func IsTerminalStatus(status string) bool {
	for _, s := range TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Options configures a Client
type Options struct {
	// Endpoint is the Step Functions Local endpoint
	Endpoint string

	// Region is the AWS region name (local testing only)
	Region string

	// AccessKeyID and SecretAccessKey are dummy credentials; the emulator
	// does not verify them but the SDK requires them to sign requests.
	AccessKeyID     string
	SecretAccessKey string

	// Logger receives client activity; defaults to a discard logger
	Logger *slog.Logger
}

// Client wraps the Step Functions API for a local emulator endpoint
type Client struct {
	api      sfniface.SFNAPI
	endpoint string
	logger   *slog.Logger
}

// ExecutionStatus describes the observed state of one execution
type ExecutionStatus struct {
	ExecutionARN string     `json:"executionArn"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"startDate"`
	StopTime     *time.Time `json:"stopDate,omitempty"`
	Input        Payload    `json:"input"`
	Output       *Payload   `json:"output,omitempty"`
}

// IsTerminal reports whether the execution has finished.
func (s *ExecutionStatus) IsTerminal() bool {
	return IsTerminalStatus(s.Status)
}

// StateMachineInfo describes a state machine registered on the emulator
type StateMachineInfo struct {
	Name            string `json:"name"`
	StateMachineARN string `json:"stateMachineArn"`
	Status          string `json:"status"`
	Definition      string `json:"definition,omitempty"`
	RoleARN         string `json:"roleArn,omitempty"`
}

// New creates a client against the configured local endpoint.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:8083"
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.AccessKeyID == "" {
		opts.AccessKeyID = "testing"
	}
	if opts.SecretAccessKey == "" {
		opts.SecretAccessKey = "testing"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(opts.Region),
		Endpoint:    aws.String(opts.Endpoint),
		Credentials: credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""),
		// Retries only mask emulator startup problems in CI; fail fast and
		// let the caller decide.
		MaxRetries: aws.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	opts.Logger.Info("step functions local client initialized", "endpoint", opts.Endpoint)

	return &Client{
		api:      sfn.New(sess),
		endpoint: opts.Endpoint,
		logger:   opts.Logger,
	}, nil
}

// NewWithAPI creates a client over an existing API implementation.
func NewWithAPI(api sfniface.SFNAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{api: api, logger: logger}
}

// Endpoint returns the configured emulator endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// TestConnection verifies the emulator is reachable by listing state machines.
func (c *Client) TestConnection() error {
	if _, err := c.api.ListStateMachines(&sfn.ListStateMachinesInput{}); err != nil {
		c.logger.Error("failed to connect to step functions local", "error", err)
		return c.wrap("list state machines", err)
	}
	c.logger.Info("successfully connected to step functions local")
	return nil
}

// CreateStateMachine creates a state machine and returns its ARN.
func (c *Client) CreateStateMachine(name, definition, roleARN string) (string, error) {
	out, err := c.api.CreateStateMachine(&sfn.CreateStateMachineInput{
		Name:       aws.String(name),
		Definition: aws.String(definition),
		RoleArn:    aws.String(roleARN),
	})
	if err != nil {
		return "", c.wrap("create state machine", err)
	}

	arn := aws.StringValue(out.StateMachineArn)
	c.logger.Info("state machine created", "arn", arn)
	return arn, nil
}

// DescribeStateMachine fetches details of a state machine.
func (c *Client) DescribeStateMachine(stateMachineARN string) (*StateMachineInfo, error) {
	out, err := c.api.DescribeStateMachine(&sfn.DescribeStateMachineInput{
		StateMachineArn: aws.String(stateMachineARN),
	})
	if err != nil {
		return nil, c.wrap("describe state machine", err)
	}

	return &StateMachineInfo{
		Name:            aws.StringValue(out.Name),
		StateMachineARN: aws.StringValue(out.StateMachineArn),
		Status:          aws.StringValue(out.Status),
		Definition:      aws.StringValue(out.Definition),
		RoleARN:         aws.StringValue(out.RoleArn),
	}, nil
}

// ListStateMachines returns the state machines registered on the emulator.
func (c *Client) ListStateMachines() ([]StateMachineInfo, error) {
	out, err := c.api.ListStateMachines(&sfn.ListStateMachinesInput{})
	if err != nil {
		return nil, c.wrap("list state machines", err)
	}

	machines := make([]StateMachineInfo, 0, len(out.StateMachines))
	for _, sm := range out.StateMachines {
		machines = append(machines, StateMachineInfo{
			Name:            aws.StringValue(sm.Name),
			StateMachineARN: aws.StringValue(sm.StateMachineArn),
		})
	}
	return machines, nil
}

// StartExecution starts a workflow execution and returns the execution ARN.
// When name is empty a unique one is generated.
func (c *Client) StartExecution(stateMachineARN string, input map[string]interface{}, name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("test_execution_%s", uuid.NewString())
	}

	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode execution input: %w", err)
	}

	out, err := c.api.StartExecution(&sfn.StartExecutionInput{
		StateMachineArn: aws.String(stateMachineARN),
		Name:            aws.String(name),
		Input:           aws.String(string(data)),
	})
	if err != nil {
		c.logger.Error("failed to start execution", "stateMachine", stateMachineARN, "error", err)
		return "", c.wrap("start execution", err)
	}

	arn := aws.StringValue(out.ExecutionArn)
	c.logger.Info("execution started", "arn", arn)
	return arn, nil
}

// DescribeExecution fetches the current status of an execution.
func (c *Client) DescribeExecution(executionARN string) (*ExecutionStatus, error) {
	out, err := c.api.DescribeExecution(&sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(executionARN),
	})
	if err != nil {
		return nil, c.wrap("describe execution", err)
	}

	status := &ExecutionStatus{
		ExecutionARN: executionARN,
		Status:       aws.StringValue(out.Status),
		StartTime:    aws.TimeValue(out.StartDate),
		StopTime:     out.StopDate,
		Input:        ParsePayload(aws.StringValue(out.Input)),
	}
	if out.Output != nil {
		output := ParsePayload(aws.StringValue(out.Output))
		status.Output = &output
	}

	return status, nil
}

// WaitForCompletion polls the execution until a terminal status is reached or
// the timeout elapses. On timeout the last observed non-terminal status is
// returned without an error; callers must check IsTerminal.
func (c *Client) WaitForCompletion(executionARN string, timeout, pollInterval time.Duration) (*ExecutionStatus, error) {
	deadline := time.Now().Add(timeout)

	var last *ExecutionStatus
	for time.Now().Before(deadline) {
		status, err := c.DescribeExecution(executionARN)
		if err != nil {
			return nil, err
		}

		if status.IsTerminal() {
			c.logger.Info("execution completed", "arn", executionARN, "status", status.Status)
			return status, nil
		}

		last = status
		c.logger.Debug("execution still running", "arn", executionARN, "status", status.Status)
		time.Sleep(pollInterval)
	}

	c.logger.Warn("execution did not complete within timeout", "arn", executionARN, "timeout", timeout)

	status, err := c.DescribeExecution(executionARN)
	if err != nil {
		// The timeout contract still holds when the final describe fails:
		// hand back the last status observed during polling.
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	return status, nil
}

// GetExecutionHistory fetches the full event history of an execution, sorted
// by timestamp ascending.
func (c *Client) GetExecutionHistory(executionARN string) ([]*sfn.HistoryEvent, error) {
	var events []*sfn.HistoryEvent

	input := &sfn.GetExecutionHistoryInput{
		ExecutionArn: aws.String(executionARN),
	}

	for {
		out, err := c.api.GetExecutionHistory(input)
		if err != nil {
			return nil, c.wrap("get execution history", err)
		}

		events = append(events, out.Events...)

		if aws.StringValue(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	sort.SliceStable(events, func(i, j int) bool {
		return aws.TimeValue(events[i].Timestamp).Before(aws.TimeValue(events[j].Timestamp))
	})

	c.logger.Info("retrieved execution history", "arn", executionARN, "events", len(events))
	return events, nil
}

// StopExecution stops a running execution.
func (c *Client) StopExecution(executionARN, errorCode, cause string) error {
	if errorCode == "" {
		errorCode = "ManualStop"
	}
	if cause == "" {
		cause = "Test stopped"
	}

	_, err := c.api.StopExecution(&sfn.StopExecutionInput{
		ExecutionArn: aws.String(executionARN),
		Error:        aws.String(errorCode),
		Cause:        aws.String(cause),
	})
	if err != nil {
		return c.wrap("stop execution", err)
	}

	c.logger.Info("execution stopped", "arn", executionARN)
	return nil
}

// ListExecutions lists executions of a state machine, optionally filtered by
// status.
func (c *Client) ListExecutions(stateMachineARN, statusFilter string) ([]*sfn.ExecutionListItem, error) {
	input := &sfn.ListExecutionsInput{
		StateMachineArn: aws.String(stateMachineARN),
	}
	if statusFilter != "" {
		input.StatusFilter = aws.String(statusFilter)
	}

	out, err := c.api.ListExecutions(input)
	if err != nil {
		return nil, c.wrap("list executions", err)
	}

	return out.Executions, nil
}

// wrap classifies an API error: transport-level failures become ErrConnection
// so callers can distinguish "emulator down" from "emulator said no".
func (c *Client) wrap(op string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case request.ErrCodeRequestError, request.ErrCodeResponseTimeout:
			return fmt.Errorf("%s at %s: %w: %v", op, c.endpoint, ErrConnection, aerr.Message())
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
