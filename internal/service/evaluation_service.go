package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/classforge/classforge-api/internal/dto"
	"github.com/classforge/classforge-api/internal/models"
	"github.com/classforge/classforge-api/internal/observability"
	"github.com/classforge/classforge-api/internal/repository"
	"github.com/classforge/classforge-api/pkg/runner"
)

// Overall statuses a finished evaluation run can carry.
const (
	OverallStatusFinished    = "Finished"
	OverallStatusRejected    = "RunnerRejected"
	OverallStatusTimeout     = "RunnerTimeout"
	OverallStatusUnreachable = "RunnerUnreachable"
	OverallStatusError       = "RunnerError"
	OverallStatusDataChanged = "DataChanged"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrUnsupportedLanguage indicates the requested language is not in the supported set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrNotEvaluable indicates the owning assignment has no automatic evaluation enabled.
var ErrNotEvaluable = errors.New("assignment is not evaluable")

// ErrMissingSolution indicates the submission has no solution artifact attached.
var ErrMissingSolution = errors.New("submission has no solution file")

// ErrNoTestCases indicates the assignment defines no test cases.
var ErrNoTestCases = errors.New("assignment has no test cases")

// ErrEvaluationForbidden indicates the caller may not trigger this evaluation.
var ErrEvaluationForbidden = errors.New("forbidden")

// EvaluationConfig describes evaluation pipeline knobs.
type EvaluationConfig struct {
	// Languages is the closed set of accepted language identifiers.
	Languages []string
	// VersionHints optionally pins a toolchain version per language.
	VersionHints map[string]string
	// RunnerTimeout bounds one remote call. It should exceed the summed
	// per-test time limits to tolerate queueing inside the runner.
	RunnerTimeout time.Duration
}

// EvaluationService drives evaluation runs end to end.
type EvaluationService interface {
	// Trigger validates the preconditions synchronously, schedules the
	// detached run and returns immediately. The run outlives the request.
	Trigger(ctx context.Context, submissionID uint, language string, callerID uint) (dto.TriggerEvaluationResponse, error)
}

type evaluationService struct {
	submissions repository.SubmissionRepository
	testCases   repository.TestCaseRepository
	memberships repository.MembershipRepository
	runner      runner.Client
	realtime    RealtimeService
	pool        *WorkerPool
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      EvaluationConfig
	languages   map[string]struct{}
}

// NewEvaluationService constructs the orchestrator.
func NewEvaluationService(
	submissionRepo repository.SubmissionRepository,
	testCaseRepo repository.TestCaseRepository,
	membershipRepo repository.MembershipRepository,
	runnerClient runner.Client,
	realtime RealtimeService,
	pool *WorkerPool,
	logger zerolog.Logger,
	cfg EvaluationConfig,
) EvaluationService {
	if cfg.RunnerTimeout <= 0 {
		cfg.RunnerTimeout = 5 * time.Minute
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"c", "cpp", "python", "java", "go", "javascript"}
	}

	languages := make(map[string]struct{}, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		languages[strings.ToLower(strings.TrimSpace(lang))] = struct{}{}
	}

	return &evaluationService{
		submissions: submissionRepo,
		testCases:   testCaseRepo,
		memberships: membershipRepo,
		runner:      runnerClient,
		realtime:    realtime,
		pool:        pool,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/classforge/classforge-api/internal/service/evaluation"),
		config:      cfg,
		languages:   languages,
	}
}

func (s *evaluationService) Trigger(ctx context.Context, submissionID uint, language string, callerID uint) (dto.TriggerEvaluationResponse, error) {
	normalized := strings.ToLower(strings.TrimSpace(language))
	if _, ok := s.languages[normalized]; !ok {
		return dto.TriggerEvaluationResponse{}, ErrUnsupportedLanguage
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TriggerEvaluationResponse{}, ErrSubmissionNotFound
		}
		return dto.TriggerEvaluationResponse{}, err
	}

	if !submission.Assignment.Evaluable {
		return dto.TriggerEvaluationResponse{}, ErrNotEvaluable
	}
	if !submission.HasSolution() {
		return dto.TriggerEvaluationResponse{}, ErrMissingSolution
	}
	if len(submission.Assignment.TestCases) == 0 {
		return dto.TriggerEvaluationResponse{}, ErrNoTestCases
	}

	if err := s.authorize(ctx, submission, callerID); err != nil {
		return dto.TriggerEvaluationResponse{}, err
	}

	observability.EvaluationsStartedTotal().WithLabelValues(normalized).Inc()

	scheduled := s.pool.Submit(func(jobCtx context.Context) {
		s.run(jobCtx, submissionID, callerID, normalized)
	})
	if !scheduled {
		// Only reachable during shutdown.
		s.logger.Warn().Uint("submission_id", submissionID).Msg("evaluation rejected, worker pool closed")
		return dto.TriggerEvaluationResponse{}, errors.New("evaluation pipeline is shutting down")
	}

	return dto.TriggerEvaluationResponse{SubmissionID: submissionID}, nil
}

// authorize allows the submission owner and any member holding an elevated
// role in the owning classroom.
func (s *evaluationService) authorize(ctx context.Context, submission models.Submission, callerID uint) error {
	if callerID == submission.StudentID {
		return nil
	}

	membership, err := s.memberships.Get(ctx, submission.Assignment.ClassroomID, callerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEvaluationForbidden
		}
		return err
	}
	if !membership.IsElevated() {
		return ErrEvaluationForbidden
	}

	return nil
}

// run is the detached body of one evaluation. Every branch terminates in a
// delivered summary; nothing escapes as an error.
func (s *evaluationService) run(ctx context.Context, submissionID, callerID uint, language string) {
	started := time.Now()

	runCtx, span := s.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.String("submission.language", language),
	))
	defer span.End()

	summary, cases := s.execute(runCtx, submissionID, language)

	s.persist(runCtx, submissionID, language, summary)

	s.realtime.NotifyResult(runCtx, dto.ResultEvent{
		Event:        dto.ResultEventName,
		UserID:       callerID,
		SubmissionID: submissionID,
		Language:     language,
		Summary:      summary,
	})

	observability.EvaluationsCompletedTotal().WithLabelValues(summary.OverallStatus).Inc()
	observability.EvaluationDurationSeconds().Observe(time.Since(started).Seconds())

	s.logger.Info().
		Uint("submission_id", submissionID).
		Str("language", language).
		Str("overall_status", summary.OverallStatus).
		Int("points_obtained", summary.PointsObtained).
		Int("points_possible", summary.TotalPossiblePoints).
		Int("test_cases", len(cases)).
		Msg("evaluation run finished")
}

// execute re-reads durable state, calls the runner and produces the scored,
// redacted summary. It also returns the ledger rows used so run can log the
// case count.
func (s *evaluationService) execute(ctx context.Context, submissionID uint, language string) (dto.EvaluationSummary, []models.TestCase) {
	summary := dto.EvaluationSummary{
		SubmissionID: submissionID,
		Language:     language,
		Results:      []dto.EvaluationOutcome{},
	}

	// State as of run start, not trigger time.
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("submission vanished before run start")
		summary.OverallStatus = OverallStatusDataChanged
		return summary, nil
	}

	cases, err := s.testCases.ListByAssignment(ctx, submission.AssignmentID)
	if err != nil || len(cases) == 0 || !submission.HasSolution() {
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("test case ledger unavailable at run start")
		}
		summary.OverallStatus = OverallStatusDataChanged
		return summary, nil
	}

	request := runner.EvaluationRequest{
		Language:         language,
		VersionHint:      s.config.VersionHints[language],
		SolutionFilePath: submission.SolutionPath,
		TestCases:        make([]runner.TestCaseSpec, 0, len(cases)),
	}
	for _, tc := range cases {
		request.TestCases = append(request.TestCases, runner.TestCaseSpec{
			InputFilePath:          tc.InputPath,
			ExpectedOutputFilePath: tc.ExpectedOutputPath,
			TestCaseID:             tc.Key(),
			MaxExecutionTimeMs:     tc.MaxExecutionTimeMs,
			MaxRAMMB:               tc.MaxRAMMB,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.RunnerTimeout)
	defer cancel()

	callStarted := time.Now()
	response, err := s.runner.Evaluate(callCtx, request)
	observability.RunnerLatencySeconds().Observe(time.Since(callStarted).Seconds())

	if err != nil {
		summary.OverallStatus = classifyRunnerError(err)
		summary.CompilationSuccess = false
		s.logger.Warn().Err(err).
			Uint("submission_id", submissionID).
			Str("overall_status", summary.OverallStatus).
			Msg("runner call failed")
		return summary, cases
	}

	summary.OverallStatus = response.OverallStatus
	if summary.OverallStatus == "" {
		summary.OverallStatus = OverallStatusFinished
	}
	summary.CompilationSuccess = response.CompilationSuccess
	summary.CompilerOutput = response.CompilerOutput

	table := NewPointTable(cases)
	outcomes := mapOutcomes(response.Results, cases)

	if response.CompilationSuccess {
		summary.PointsObtained, summary.TotalPossiblePoints = Score(outcomes, table)
	} else {
		summary.PointsObtained = 0
		summary.TotalPossiblePoints = SumPoints(cases)
	}

	summary.Results = RedactPrivate(outcomes, NewPrivacySet(cases))

	return summary, cases
}

// persist writes the snapshot group in one statement. Failure is logged and
// swallowed: the push notification still goes out.
func (s *evaluationService) persist(ctx context.Context, submissionID uint, language string, summary dto.EvaluationSummary) {
	detail, err := json.Marshal(summary)
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to encode evaluation detail")
		detail = nil
	}

	snapshot := repository.EvaluationSnapshot{
		EvaluatedAt:    time.Now().UTC(),
		OverallStatus:  summary.OverallStatus,
		PointsObtained: summary.PointsObtained,
		PointsPossible: summary.TotalPossiblePoints,
		Language:       language,
		Detail:         detail,
	}

	if err := s.submissions.SaveEvaluation(ctx, submissionID, snapshot); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to persist evaluation snapshot")
	}
}

func classifyRunnerError(err error) string {
	var statusErr *runner.StatusError
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return OverallStatusTimeout
	case errors.Is(err, runner.ErrUnreachable):
		return OverallStatusUnreachable
	case errors.As(err, &statusErr):
		return OverallStatusRejected
	default:
		return OverallStatusError
	}
}

// mapOutcomes joins runner results with the ledger rows they reference.
// Results without a matching test case are kept for display but carry no
// points, so they cannot affect the score.
func mapOutcomes(results []runner.TestCaseResult, cases []models.TestCase) []dto.EvaluationOutcome {
	byKey := make(map[string]models.TestCase, len(cases))
	for _, tc := range cases {
		byKey[tc.Key()] = tc
	}

	outcomes := make([]dto.EvaluationOutcome, 0, len(results))
	for _, result := range results {
		outcome := dto.EvaluationOutcome{
			TestCaseID:     result.TestCaseID,
			Status:         result.Status,
			Stdout:         result.Stdout,
			Stderr:         result.Stderr,
			Message:        result.Message,
			DurationMs:     result.DurationMs,
			MemoryExceeded: result.MaximumMemoryException,
		}
		if tc, ok := byKey[result.TestCaseID]; ok {
			outcome.InputPath = tc.InputPath
			outcome.Points = tc.Points
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}
