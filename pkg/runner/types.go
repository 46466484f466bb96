package runner

// Wire types for the remote code execution service.

// TestCaseSpec points the runner at one fixture pair with its limits.
type TestCaseSpec struct {
	InputFilePath          string `json:"inputFilePath"`
	ExpectedOutputFilePath string `json:"expectedOutputFilePath"`
	TestCaseID             string `json:"testCaseId"`
	MaxExecutionTimeMs     int    `json:"maxExecutionTimeMs"`
	MaxRAMMB               int    `json:"maxRamMB"`
}

// EvaluationRequest is the payload sent to the execution service.
type EvaluationRequest struct {
	Language         string         `json:"language"`
	VersionHint      string         `json:"versionHint,omitempty"`
	SolutionFilePath string         `json:"solutionFilePath"`
	TestCases        []TestCaseSpec `json:"testCases"`
}

// TestCaseResult is the runner's verdict for one test case.
type TestCaseResult struct {
	TestCaseID             string `json:"testCaseId"`
	Status                 string `json:"status"`
	Stdout                 string `json:"stdout,omitempty"`
	Stderr                 string `json:"stderr,omitempty"`
	Message                string `json:"message,omitempty"`
	DurationMs             int64  `json:"durationMs,omitempty"`
	MaximumMemoryException bool   `json:"maximumMemoryException"`
}

// EvaluationResponse is the structured reply from the execution service.
type EvaluationResponse struct {
	OverallStatus      string           `json:"overallStatus"`
	CompilationSuccess bool             `json:"compilationSuccess"`
	CompilerOutput     string           `json:"compilerOutput,omitempty"`
	Results            []TestCaseResult `json:"results"`
}

// Per-test statuses reported by the execution service.
const (
	StatusAccepted            = "accepted"
	StatusWrongAnswer         = "wrong_answer"
	StatusCompileError        = "compile_error"
	StatusRuntimeError        = "runtime_error"
	StatusTimeLimitExceeded   = "time_limit_exceeded"
	StatusMemoryLimitExceeded = "memory_limit_exceeded"
	StatusFileError           = "file_error"
	StatusUnsupportedLanguage = "unsupported_language"
	StatusInternalError       = "internal_error"
)
