package tester

import "time"

// ReportSummary aggregates pass/fail counts across one batch of scenarios
type ReportSummary struct {
	TotalTests         int     `json:"total_tests"`
	SuccessfulTests    int     `json:"successful_tests"`
	FailedTests        int     `json:"failed_tests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalExecutionTime float64 `json:"total_execution_time"`
}

// TestDetail is one scenario's entry in the report
type TestDetail struct {
	TestName             string   `json:"test_name"`
	Status               string   `json:"status"`
	ExecutionStatus      string   `json:"execution_status,omitempty"`
	ExecutionTimeSeconds float64  `json:"execution_time_seconds"`
	ValidationCount      int      `json:"validation_count"`
	ErrorCount           int      `json:"error_count"`
	WarningCount         int      `json:"warning_count"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
}

// Report is the JSON test report emitted after a batch run
type Report struct {
	Summary       ReportSummary `json:"summary"`
	TestDetails   []TestDetail  `json:"test_details"`
	OverallStatus string        `json:"overall_status"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// GenerateReport computes aggregate counts, the success rate and total
// elapsed time for a batch of results.
func (t *Tester) GenerateReport(results []*WorkflowTestResult) *Report {
	total := len(results)
	successful := 0
	totalTime := 0.0

	details := make([]TestDetail, 0, total)
	for _, result := range results {
		if result.Success {
			successful++
		}
		totalTime += result.ExecutionTime.Seconds()

		status := "FAILED"
		if result.Success {
			status = "PASSED"
		}

		details = append(details, TestDetail{
			TestName:             result.TestName,
			Status:               status,
			ExecutionStatus:      result.ExecutionStatus,
			ExecutionTimeSeconds: result.ExecutionTime.Seconds(),
			ValidationCount:      len(result.ValidationResults),
			ErrorCount:           len(result.Errors),
			WarningCount:         len(result.Warnings),
			Errors:               result.Errors,
			Warnings:             result.Warnings,
		})
	}

	failed := total - successful
	successRate := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}

	overall := "PASSED"
	if failed > 0 {
		overall = "FAILED"
	}

	return &Report{
		Summary: ReportSummary{
			TotalTests:         total,
			SuccessfulTests:    successful,
			FailedTests:        failed,
			SuccessRate:        successRate,
			TotalExecutionTime: totalTime,
		},
		TestDetails:   details,
		OverallStatus: overall,
		GeneratedAt:   time.Now(),
	}
}
