// Package config provides configuration handling for sfnharness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tcmartin/sfnharness/pkg/logging"
)

// Config represents the harness configuration
type Config struct {
	// Endpoint is the Step Functions Local endpoint
	Endpoint string `json:"stepfunctions_local_endpoint"`

	// SAMAPIEndpoint is the SAM Local API endpoint (optional collaborator)
	SAMAPIEndpoint string `json:"sam_api_endpoint"`

	// Region is the AWS region name (local testing only)
	Region string `json:"region_name"`

	// AccessKeyID is the dummy access key used against the emulator
	AccessKeyID string `json:"aws_access_key_id"`

	// SecretAccessKey is the dummy secret key used against the emulator
	SecretAccessKey string `json:"aws_secret_access_key"`

	// StateMachineARN is the state machine under test
	StateMachineARN string `json:"state_machine_arn"`

	// Scenarios are the named test scenarios to execute
	Scenarios []Scenario `json:"test_scenarios,omitempty"`

	// Logging configuration
	Logging logging.Config `json:"logging"`
}

// Scenario is one named (input payload, timeout) pair driving one
// end-to-end workflow test.
type Scenario struct {
	// Name identifies the scenario in reports
	Name string `json:"name" yaml:"name"`

	// Input is the workflow input payload
	Input map[string]interface{} `json:"input_data" yaml:"input_data"`

	// TimeoutSeconds bounds the execution wait
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        "http://localhost:8083",
		SAMAPIEndpoint:  "http://localhost:3001",
		Region:          "us-east-1",
		AccessKeyID:     "testing",
		SecretAccessKey: "testing",
		StateMachineARN: "arn:aws:states:us-east-1:123456789012:stateMachine:WorkflowStateMachine",
		Logging:         logging.DefaultConfig(),
	}
}

// LoadConfig loads the configuration from a file, falling back to defaults
// for fields the file does not set.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values from the environment. CI pipelines
// set these instead of editing the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STEPFUNCTIONS_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("SAM_API_ENDPOINT"); v != "" {
		c.SAMAPIEndpoint = v
	}
	if v := os.Getenv("STATE_MACHINE_ARN"); v != "" {
		c.StateMachineARN = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Region = v
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("stepfunctions_local_endpoint is required")
	}
	if c.StateMachineARN == "" {
		return fmt.Errorf("state_machine_arn is required")
	}
	return nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
