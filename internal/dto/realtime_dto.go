package dto

// ResultEventName is the websocket event carrying evaluation results.
const ResultEventName = "evaluation.result"

// ResultEvent is the named push event delivered to the triggering user's
// connected sessions. SubmissionID and Language double as correlation keys
// so a client that triggered several runs can match each reply.
type ResultEvent struct {
	Event        string            `json:"event"`
	UserID       uint              `json:"user_id"`
	SubmissionID uint              `json:"submission_id"`
	Language     string            `json:"language"`
	Summary      EvaluationSummary `json:"summary"`
}
