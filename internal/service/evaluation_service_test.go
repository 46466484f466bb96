package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classforge/classforge-api/internal/dto"
	"github.com/classforge/classforge-api/internal/models"
	"github.com/classforge/classforge-api/internal/repository"
	"github.com/classforge/classforge-api/pkg/runner"
)

type stubSubmissionRepo struct {
	mu         sync.Mutex
	submission models.Submission
	getErr     error
	saveErr    error
	getCalls   int
	saved      []repository.EvaluationSnapshot
	// vanishAfter makes GetByID fail once the trigger fetch happened,
	// simulating deletion between trigger and run start.
	vanishAfter int
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return models.Submission{}, s.getErr
	}
	if s.vanishAfter > 0 && s.getCalls > s.vanishAfter {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return s.submission, nil
}

func (s *stubSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	return nil
}

func (s *stubSubmissionRepo) SaveEvaluation(ctx context.Context, id uint, snapshot repository.EvaluationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snapshot)
	return nil
}

func (s *stubSubmissionRepo) savedSnapshots() []repository.EvaluationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.EvaluationSnapshot, len(s.saved))
	copy(out, s.saved)
	return out
}

type stubTestCaseRepo struct {
	cases []models.TestCase
	err   error
}

func (s *stubTestCaseRepo) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.TestCase, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cases, nil
}

func (s *stubTestCaseRepo) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	return int64(len(s.cases)), s.err
}

type stubMembershipRepo struct {
	membership models.Membership
	err        error
}

func (s *stubMembershipRepo) Get(ctx context.Context, classroomID, userID uint) (models.Membership, error) {
	if s.err != nil {
		return models.Membership{}, s.err
	}
	return s.membership, nil
}

type stubRunner struct {
	mu       sync.Mutex
	response runner.EvaluationResponse
	err      error
	calls    int
}

func (s *stubRunner) Evaluate(ctx context.Context, request runner.EvaluationRequest) (runner.EvaluationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return runner.EvaluationResponse{}, s.err
	}
	return s.response, nil
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubNotifier struct {
	events chan dto.ResultEvent
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{events: make(chan dto.ResultEvent, 8)}
}

func (s *stubNotifier) NotifyResult(ctx context.Context, event dto.ResultEvent) {
	s.events <- event
}

func (s *stubNotifier) Subscribe(userID uint) (<-chan dto.ResultEvent, func()) {
	return s.events, func() {}
}

func (s *stubNotifier) Start(ctx context.Context) {}

func (s *stubNotifier) waitForEvent(t *testing.T) dto.ResultEvent {
	t.Helper()
	select {
	case event := <-s.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no evaluation result was delivered")
		return dto.ResultEvent{}
	}
}

func evaluableSubmission() models.Submission {
	return models.Submission{
		ID:           5,
		AssignmentID: 7,
		StudentID:    10,
		SolutionPath: "solutions/5/main.py",
		Assignment: models.Assignment{
			ID:          7,
			ClassroomID: 3,
			Evaluable:   true,
			TestCases: []models.TestCase{
				{ID: 1, AssignmentID: 7, InputPath: "cases/1.in", ExpectedOutputPath: "cases/1.out", Points: 30},
				{ID: 2, AssignmentID: 7, InputPath: "cases/2.in", ExpectedOutputPath: "cases/2.out", Points: 70},
			},
		},
	}
}

type evaluationFixture struct {
	submissions *stubSubmissionRepo
	testCases   *stubTestCaseRepo
	memberships *stubMembershipRepo
	runner      *stubRunner
	notifier    *stubNotifier
	pool        *WorkerPool
	service     EvaluationService
}

func newEvaluationFixture(t *testing.T, submission models.Submission) *evaluationFixture {
	t.Helper()

	f := &evaluationFixture{
		submissions: &stubSubmissionRepo{submission: submission},
		testCases:   &stubTestCaseRepo{cases: submission.Assignment.TestCases},
		memberships: &stubMembershipRepo{err: gorm.ErrRecordNotFound},
		runner:      &stubRunner{},
		notifier:    newStubNotifier(),
		pool:        NewWorkerPool(2, 4, zerolog.Nop()),
	}
	t.Cleanup(f.pool.Close)

	f.service = NewEvaluationService(
		f.submissions,
		f.testCases,
		f.memberships,
		f.runner,
		f.notifier,
		f.pool,
		zerolog.Nop(),
		EvaluationConfig{RunnerTimeout: time.Second},
	)

	return f
}

func TestTriggerRejectsUnsupportedLanguage(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())

	_, err := f.service.Trigger(context.Background(), 5, "COBOL", 10)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
	require.Equal(t, 0, f.runner.callCount())
	require.Equal(t, 0, f.submissions.getCalls, "no lookup should happen for an unsupported language")
}

func TestTriggerNormalizesLanguageCase(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.runner.response = runner.EvaluationResponse{OverallStatus: OverallStatusFinished, CompilationSuccess: true}

	_, err := f.service.Trigger(context.Background(), 5, "  PyThOn ", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, "python", event.Language)
}

func TestTriggerRejectsMissingSubmission(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.submissions.getErr = gorm.ErrRecordNotFound

	_, err := f.service.Trigger(context.Background(), 99, "python", 10)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestTriggerRejectsNotEvaluableAssignment(t *testing.T) {
	submission := evaluableSubmission()
	submission.Assignment.Evaluable = false
	f := newEvaluationFixture(t, submission)

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.ErrorIs(t, err, ErrNotEvaluable)
	require.Equal(t, 0, f.runner.callCount())
}

func TestTriggerRejectsMissingSolutionEvenWithTestCases(t *testing.T) {
	submission := evaluableSubmission()
	submission.SolutionPath = ""
	f := newEvaluationFixture(t, submission)

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.ErrorIs(t, err, ErrMissingSolution)
}

func TestTriggerRejectsAssignmentWithoutTestCases(t *testing.T) {
	submission := evaluableSubmission()
	submission.Assignment.TestCases = nil
	f := newEvaluationFixture(t, submission)

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.ErrorIs(t, err, ErrNoTestCases)
}

func TestTriggerRejectsCallerWithoutMembership(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())

	_, err := f.service.Trigger(context.Background(), 5, "python", 42)
	require.ErrorIs(t, err, ErrEvaluationForbidden)
}

func TestTriggerRejectsNonElevatedMember(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.memberships.err = nil
	f.memberships.membership = models.Membership{ClassroomID: 3, UserID: 42, Role: models.MembershipRoleStudent}

	_, err := f.service.Trigger(context.Background(), 5, "python", 42)
	require.ErrorIs(t, err, ErrEvaluationForbidden)
}

func TestTriggerAllowsElevatedMember(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.memberships.err = nil
	f.memberships.membership = models.Membership{ClassroomID: 3, UserID: 42, Role: models.MembershipRoleTeacher}
	f.runner.response = runner.EvaluationResponse{OverallStatus: OverallStatusFinished, CompilationSuccess: true}

	response, err := f.service.Trigger(context.Background(), 5, "python", 42)
	require.NoError(t, err)
	require.Equal(t, uint(5), response.SubmissionID)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, uint(42), event.UserID, "the triggering caller gets the notification")
}

func TestRunScoresAcceptedOutcomes(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.runner.response = runner.EvaluationResponse{
		OverallStatus:      OverallStatusFinished,
		CompilationSuccess: true,
		Results: []runner.TestCaseResult{
			{TestCaseID: "1", Status: runner.StatusAccepted, DurationMs: 12},
			{TestCaseID: "2", Status: runner.StatusWrongAnswer, DurationMs: 20},
		},
	}

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, uint(5), event.SubmissionID)
	require.Equal(t, OverallStatusFinished, event.Summary.OverallStatus)
	require.Equal(t, 30, event.Summary.PointsObtained)
	require.Equal(t, 100, event.Summary.TotalPossiblePoints)
	require.Len(t, event.Summary.Results, 2)

	require.Eventually(t, func() bool {
		return len(f.submissions.savedSnapshots()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	snapshot := f.submissions.savedSnapshots()[0]
	require.Equal(t, OverallStatusFinished, snapshot.OverallStatus)
	require.Equal(t, 30, snapshot.PointsObtained)
	require.Equal(t, 100, snapshot.PointsPossible)
	require.Equal(t, "python", snapshot.Language)
	require.False(t, snapshot.EvaluatedAt.IsZero())
	require.NotEmpty(t, snapshot.Detail)
}

func TestRunCompilationFailureZeroesObtainedPoints(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.runner.response = runner.EvaluationResponse{
		OverallStatus:      OverallStatusFinished,
		CompilationSuccess: false,
		CompilerOutput:     "main.cpp:3: expected ';'",
	}

	_, err := f.service.Trigger(context.Background(), 5, "cpp", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.False(t, event.Summary.CompilationSuccess)
	require.Equal(t, "main.cpp:3: expected ';'", event.Summary.CompilerOutput)
	require.Equal(t, 0, event.Summary.PointsObtained)
	require.Equal(t, 100, event.Summary.TotalPossiblePoints, "possible falls back to the full ledger sum")
}

func TestRunTimeoutProducesTerminalSummary(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.runner.err = runner.ErrTimeout

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err, "the trigger must not observe the asynchronous failure")

	event := f.notifier.waitForEvent(t)
	require.Equal(t, OverallStatusTimeout, event.Summary.OverallStatus)
	require.False(t, event.Summary.CompilationSuccess)
	require.Empty(t, event.Summary.Results)
}

func TestRunClassifiesRunnerFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"unreachable", runner.ErrUnreachable, OverallStatusUnreachable},
		{"rejected", &runner.StatusError{Code: 503}, OverallStatusRejected},
		{"unexpected", errors.New("boom"), OverallStatusError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newEvaluationFixture(t, evaluableSubmission())
			f.runner.err = tc.err

			_, err := f.service.Trigger(context.Background(), 5, "python", 10)
			require.NoError(t, err)

			event := f.notifier.waitForEvent(t)
			require.Equal(t, tc.expected, event.Summary.OverallStatus)
			require.Empty(t, event.Summary.Results)
		})
	}
}

func TestRunDataDriftStillNotifies(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.submissions.vanishAfter = 1

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, OverallStatusDataChanged, event.Summary.OverallStatus)
	require.Equal(t, 0, f.runner.callCount(), "no runner call once the submission vanished")
}

func TestRunPersistenceFailureStillNotifies(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.submissions.saveErr = errors.New("connection reset")
	f.runner.response = runner.EvaluationResponse{OverallStatus: OverallStatusFinished, CompilationSuccess: true}

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, OverallStatusFinished, event.Summary.OverallStatus)
}

func TestRunRedactsPrivateTestCases(t *testing.T) {
	submission := evaluableSubmission()
	submission.Assignment.TestCases[1].Private = true
	f := newEvaluationFixture(t, submission)
	f.testCases.cases = submission.Assignment.TestCases
	f.runner.response = runner.EvaluationResponse{
		OverallStatus:      OverallStatusFinished,
		CompilationSuccess: true,
		Results: []runner.TestCaseResult{
			{TestCaseID: "1", Status: runner.StatusAccepted, Stdout: "public out"},
			{TestCaseID: "2", Status: runner.StatusAccepted, Stdout: "secret out", Message: "secret diff"},
		},
	}

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err)

	event := f.notifier.waitForEvent(t)
	require.Equal(t, 100, event.Summary.PointsObtained, "private cases still score")

	var sawPublic, sawPrivate bool
	for _, outcome := range event.Summary.Results {
		if outcome.TestCaseID == "1" {
			sawPublic = true
			require.Equal(t, "public out", outcome.Stdout)
		}
		if outcome.TestCaseID == "" {
			sawPrivate = true
			require.Empty(t, outcome.Stdout)
			require.Empty(t, outcome.Message)
			require.Empty(t, outcome.InputPath)
		}
	}
	require.True(t, sawPublic)
	require.True(t, sawPrivate)
}

func TestConcurrentTriggersBothComplete(t *testing.T) {
	f := newEvaluationFixture(t, evaluableSubmission())
	f.runner.response = runner.EvaluationResponse{
		OverallStatus:      OverallStatusFinished,
		CompilationSuccess: true,
		Results: []runner.TestCaseResult{
			{TestCaseID: "1", Status: runner.StatusAccepted},
			{TestCaseID: "2", Status: runner.StatusAccepted},
		},
	}

	_, err := f.service.Trigger(context.Background(), 5, "python", 10)
	require.NoError(t, err)
	_, err = f.service.Trigger(context.Background(), 5, "go", 10)
	require.NoError(t, err)

	first := f.notifier.waitForEvent(t)
	second := f.notifier.waitForEvent(t)

	languages := map[string]bool{first.Language: true, second.Language: true}
	require.True(t, languages["python"])
	require.True(t, languages["go"])

	require.Eventually(t, func() bool {
		return len(f.submissions.savedSnapshots()) == 2
	}, 2*time.Second, 10*time.Millisecond, "both runs persist; last writer wins")
}
