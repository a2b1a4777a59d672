package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// scenarioSchema validates scenario files before they drive real executions.
// A malformed scenario file is a configuration mistake, so it is rejected up
// front instead of surfacing as a confusing workflow failure later.
const scenarioSchema = `{
  "type": "object",
  "required": ["scenarios"],
  "properties": {
    "scenarios": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "input_data"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "input_data": {"type": "object"},
          "timeout_seconds": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

type scenarioFile struct {
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// LoadScenarios loads scenario definitions from a JSON or YAML file and
// validates them against the scenario schema.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert scenario file: %w", err)
		}
	}

	if err := validateScenarioDocument(data); err != nil {
		return nil, err
	}

	var file scenarioFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	for i := range file.Scenarios {
		if file.Scenarios[i].TimeoutSeconds == 0 {
			file.Scenarios[i].TimeoutSeconds = 300
		}
	}

	return file.Scenarios, nil
}

func validateScenarioDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(scenarioSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate scenario file: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("scenario file is invalid: %s", strings.Join(problems, "; "))
	}

	return nil
}

// yamlToJSON converts a YAML document to JSON so the same schema applies to
// both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[interface{}]interface{} values that older YAML
// layers produce into map[string]interface{} so json.Marshal accepts them.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}

// SampleScenarios returns the default scenarios used when no scenario file is
// configured.
func SampleScenarios() []Scenario {
	return []Scenario{
		{
			Name: "basic_workflow_test",
			Input: map[string]interface{}{
				"requestId": "test-request-001",
				"inputData": map[string]interface{}{
					"value": "test_value_basic",
					"metadata": map[string]interface{}{
						"source": "automated_test",
					},
				},
			},
			TimeoutSeconds: 300,
		},
		{
			Name: "complex_data_workflow_test",
			Input: map[string]interface{}{
				"requestId": "test-request-002",
				"inputData": map[string]interface{}{
					"value": "complex_test_data_with_special_chars_!@#$%",
					"metadata": map[string]interface{}{
						"source": "complex_test",
						"additional_info": map[string]interface{}{
							"test_type":                "complex_scenario",
							"expected_transformations": 3,
						},
					},
				},
			},
			TimeoutSeconds: 300,
		},
		{
			Name: "minimal_data_workflow_test",
			Input: map[string]interface{}{
				"requestId": "test-request-003",
				"inputData": map[string]interface{}{
					"value": "min",
				},
			},
			TimeoutSeconds: 300,
		},
	}
}
