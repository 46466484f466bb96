package dto

// TriggerEvaluationRequest carries the query parameters of a trigger call.
type TriggerEvaluationRequest struct {
	SubmissionID uint   `json:"submission_id" validate:"required,gt=0"`
	Language     string `json:"language" validate:"required"`
}

// TriggerEvaluationResponse acknowledges an accepted trigger.
type TriggerEvaluationResponse struct {
	SubmissionID uint `json:"submission_id"`
}

// EvaluationOutcome is the client-facing verdict for one test case. For
// private test cases the identifying fields are blanked before the outcome
// leaves the orchestrator.
type EvaluationOutcome struct {
	TestCaseID     string `json:"test_case_id"`
	InputPath      string `json:"input_path,omitempty"`
	Status         string `json:"status"`
	Stdout         string `json:"stdout,omitempty"`
	Stderr         string `json:"stderr,omitempty"`
	Message        string `json:"message,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	MemoryExceeded bool   `json:"memory_exceeded"`
	Points         int    `json:"points"`
}

// EvaluationSummary is the terminal payload of one evaluation run. It is
// persisted as the submission's latest snapshot and pushed to the caller.
type EvaluationSummary struct {
	SubmissionID        uint                `json:"submission_id"`
	Language            string              `json:"language"`
	OverallStatus       string              `json:"overall_status"`
	CompilationSuccess  bool                `json:"compilation_success"`
	CompilerOutput      string              `json:"compiler_output,omitempty"`
	Results             []EvaluationOutcome `json:"results"`
	PointsObtained      int                 `json:"points_obtained"`
	TotalPossiblePoints int                 `json:"total_possible_points"`
}
