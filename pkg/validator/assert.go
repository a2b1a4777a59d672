package validator

import (
	"fmt"
	"strings"
)

// AssertValidationPassed returns an error describing the failure when a
// validation result did not pass.
func AssertValidationPassed(result ValidationResult, context string) error {
	if result.IsValid {
		return nil
	}
	if context != "" {
		return fmt.Errorf("validation failed for %s: %s", context, strings.Join(result.Errors, "; "))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(result.Errors, "; "))
}

// AssertFieldEquals checks that the value at a dotted field path equals the
// expected value.
func AssertFieldEquals(data map[string]interface{}, path string, expected interface{}) error {
	actual, _ := NestedValue(data, path)
	if actual != expected {
		return fmt.Errorf("field '%s' assertion failed: expected %v, got %v", path, expected, actual)
	}
	return nil
}

// AssertFieldContains checks that the value at a dotted field path contains
// the expected substring.
func AssertFieldContains(data map[string]interface{}, path string, substring string) error {
	value, _ := NestedValue(data, path)
	actual := fmt.Sprintf("%v", value)
	if !strings.Contains(actual, substring) {
		return fmt.Errorf("field '%s' does not contain '%s': got '%s'", path, substring, actual)
	}
	return nil
}
