package orchestrator

import "time"

// ReportMetadata describes when and how a report was produced
type ReportMetadata struct {
	GeneratedAt          time.Time `json:"generated_at"`
	TestSuite            string    `json:"test_suite"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
	CICompatible         bool      `json:"ci_compatible"`
}

// ReportSummary is the top-level pass/fail summary
type ReportSummary struct {
	TotalScenarios      int     `json:"total_scenarios"`
	SuccessfulScenarios int     `json:"successful_scenarios"`
	FailedScenarios     int     `json:"failed_scenarios"`
	SuccessRatePercent  float64 `json:"success_rate_percent"`
	OverallSuccess      bool    `json:"overall_success"`
}

// ReportIssues splits accumulated problems by severity
type ReportIssues struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Report is the serializable integration-test report
type Report struct {
	Metadata        ReportMetadata `json:"metadata"`
	Summary         ReportSummary  `json:"summary"`
	Environment     *Environment   `json:"environment"`
	Diagnostics     *Diagnostics   `json:"diagnostics"`
	DetailedResults interface{}    `json:"detailed_results"`
	Issues          ReportIssues   `json:"issues"`
}

// IntegrationReport wraps the report under its document root key
type IntegrationReport struct {
	IntegrationTestReport Report `json:"integration_test_report"`
}

// GenerateReport builds the serializable report for a finished run.
func GenerateReport(result *Result) *IntegrationReport {
	return &IntegrationReport{
		IntegrationTestReport: Report{
			Metadata: ReportMetadata{
				GeneratedAt:          time.Now(),
				TestSuite:            result.TestSuiteName,
				ExecutionTimeSeconds: result.ExecutionTime.Seconds(),
				CICompatible:         result.CICompatible,
			},
			Summary: ReportSummary{
				TotalScenarios:      result.TotalScenarios,
				SuccessfulScenarios: result.SuccessfulScenarios,
				FailedScenarios:     result.FailedScenarios,
				SuccessRatePercent:  result.SuccessRate(),
				OverallSuccess:      result.OverallSuccess(),
			},
			Environment:     result.Environment,
			Diagnostics:     result.Diagnostics,
			DetailedResults: result.DetailedResults,
			Issues: ReportIssues{
				Errors:   result.Errors,
				Warnings: result.Warnings,
			},
		},
	}
}
