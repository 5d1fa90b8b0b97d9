package service

import (
	"context"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
	"github.com/mizuki-lab/shukudai-api/pkg/runner"
)

type fakeSubmissionRepo struct {
	submissions map[uint]models.Submission
	nextID      uint
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[uint]models.Submission), nextID: 1}
}

func (f *fakeSubmissionRepo) List(ctx context.Context, filter repository.SubmissionFilter) ([]models.Submission, error) {
	out := make([]models.Submission, 0)
	for _, submission := range f.submissions {
		if filter.AssignmentID != nil && submission.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.UserID != nil && submission.UserID != *filter.UserID {
			continue
		}
		out = append(out, submission)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeSubmissionRepo) ListForUsers(ctx context.Context, userIDs []uint) ([]models.Submission, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	out := make([]models.Submission, 0)
	for _, submission := range f.submissions {
		if _, ok := wanted[submission.UserID]; ok {
			out = append(out, submission)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeSubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	submission, ok := f.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (f *fakeSubmissionRepo) LatestByUserAssignment(ctx context.Context, userID, assignmentID uint) (models.Submission, error) {
	var latest models.Submission
	found := false
	for _, submission := range f.submissions {
		if submission.UserID != userID || submission.AssignmentID != assignmentID {
			continue
		}
		if !found || submission.ID > latest.ID {
			latest = submission
			found = true
		}
	}
	if !found {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	submission.ID = f.nextID
	f.nextID++
	f.submissions[submission.ID] = *submission
	return nil
}

func (f *fakeSubmissionRepo) UpdateVerdict(ctx context.Context, id uint, isCorrect *int, feedback string) (int64, error) {
	submission, ok := f.submissions[id]
	if !ok {
		return 0, nil
	}
	submission.IsCorrect = isCorrect
	submission.Feedback = feedback
	f.submissions[id] = submission
	return 1, nil
}

func (f *fakeSubmissionRepo) UpdateAnswer(ctx context.Context, id uint, answerText string) (int64, error) {
	submission, ok := f.submissions[id]
	if !ok {
		return 0, nil
	}
	submission.AnswerText = answerText
	submission.IsCorrect = nil
	submission.Feedback = ""
	f.submissions[id] = submission
	return 1, nil
}

func (f *fakeSubmissionRepo) AccuracyByUser(ctx context.Context, classID *uint) ([]repository.UserAccuracyRow, error) {
	return nil, nil
}

// scriptedTargets answers IsAssigned from a fixed allow set; the other
// methods are unused by the grading workflow.
type scriptedTargets struct {
	assigned map[uint]bool
}

func (s *scriptedTargets) ListTargets(ctx context.Context, assignmentID uint) ([]dto.TargetResponse, error) {
	return nil, nil
}

func (s *scriptedTargets) ResolveUsers(ctx context.Context, assignmentID uint) ([]dto.UserResponse, error) {
	return nil, nil
}

func (s *scriptedTargets) ResolveAssignments(ctx context.Context, userID uint) ([]dto.AssignmentResponse, error) {
	return nil, nil
}

func (s *scriptedTargets) Replace(ctx context.Context, assignmentID uint, payload dto.TargetReplaceRequest) ([]dto.TargetResponse, error) {
	return nil, nil
}

func (s *scriptedTargets) Unassign(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) error {
	return nil
}

func (s *scriptedTargets) IsAssigned(ctx context.Context, userID, assignmentID uint) (bool, error) {
	return s.assigned[userID], nil
}

// scriptedExecutor replays canned sandbox results in order.
type scriptedExecutor struct {
	results []runner.Result
	calls   int
}

func (s *scriptedExecutor) Run(ctx context.Context, req runner.Request) (runner.Result, error) {
	if s.calls >= len(s.results) {
		return runner.Result{}, nil
	}
	result := s.results[s.calls]
	s.calls++
	return result, nil
}

func newGradingServiceForTest(submissions *fakeSubmissionRepo, assignments *fakeAssignmentRepo, targets TargetService, executor runner.Executor) GradingService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewGradingService(submissions, assignments, targets, executor, nil, validate, testLogger())
}

func seedChoiceAssignment(assignments *fakeAssignmentRepo) uint {
	assignment := models.Assignment{
		LessonID:    1,
		Title:       "Capitals",
		ProblemType: models.ProblemTypeChoice,
		Choices: []models.ChoiceOption{
			{ID: 1, OptionText: "Tokyo", IsCorrect: true},
			{ID: 2, OptionText: "Osaka"},
		},
	}
	_ = assignments.Create(context.Background(), &assignment)
	return assignment.ID
}

func TestGradingSubmitChoiceVerdicts(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedChoiceAssignment(assignments)
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	correct, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(1)})
	require.NoError(t, err)
	require.Equal(t, "correct", correct.Verdict)
	require.NotNil(t, correct.IsCorrect)
	require.Equal(t, 1, *correct.IsCorrect)

	incorrect, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(2)})
	require.NoError(t, err)
	require.Equal(t, "incorrect", incorrect.Verdict)

	// Repeat attempts append rows, they never overwrite.
	require.Len(t, submissions.submissions, 2)
}

func TestGradingSubmitChoiceBrokenOptionSet(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	broken := models.Assignment{
		LessonID:    1,
		Title:       "Single option",
		ProblemType: models.ProblemTypeChoice,
		Choices: []models.ChoiceOption{
			{ID: 1, OptionText: "Only answer", IsCorrect: true},
		},
	}
	require.NoError(t, assignments.Create(context.Background(), &broken))
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	_, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: broken.ID, SelectedChoiceID: ptrUint(1)})
	require.ErrorIs(t, err, ErrInvalidChoices)
	require.Empty(t, submissions.submissions)
}

func TestGradingSubmitChoiceForeignOption(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedChoiceAssignment(assignments)
	other := models.Assignment{
		LessonID:    1,
		Title:       "Rivers",
		ProblemType: models.ProblemTypeChoice,
		Choices:     []models.ChoiceOption{{ID: 9, OptionText: "Shinano", IsCorrect: true}},
	}
	require.NoError(t, assignments.Create(context.Background(), &other))

	svc := newGradingServiceForTest(newFakeSubmissionRepo(), assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	_, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(9)})
	require.ErrorIs(t, err, ErrChoiceNotFound)
}

func TestGradingSubmitRejectsNonTarget(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedChoiceAssignment(assignments)

	svc := newGradingServiceForTest(newFakeSubmissionRepo(), assignments, &scriptedTargets{assigned: map[uint]bool{}}, nil)

	_, err := svc.Submit(context.Background(), 42, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(1)})
	require.ErrorIs(t, err, ErrNotAssigned)
}

func seedCodeAssignment(assignments *fakeAssignmentRepo, cases ...models.TestCase) uint {
	assignment := models.Assignment{
		LessonID:    1,
		Title:       "Echo",
		ProblemType: models.ProblemTypeCode,
		ExecMode:    models.ExecModeStdin,
		TestCases:   cases,
	}
	_ = assignments.Create(context.Background(), &assignment)
	return assignment.ID
}

func TestGradingSubmitCodeAllPass(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedCodeAssignment(assignments,
		models.TestCase{ID: 1, Input: "1 2", ExpectedOutput: "3"},
		models.TestCase{ID: 2, Input: "4 5", ExpectedOutput: "9"},
	)
	executor := &scriptedExecutor{results: []runner.Result{
		{Stdout: "3\n"},
		{Stdout: "9\n"},
	}}
	svc := newGradingServiceForTest(newFakeSubmissionRepo(), assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, executor)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, Code: "print(sum(map(int, input().split())))"})
	require.NoError(t, err)
	require.Equal(t, "correct", resp.Verdict)
	require.Equal(t, 2, executor.calls)
}

func TestGradingSubmitCodeWrongOutput(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedCodeAssignment(assignments,
		models.TestCase{ID: 1, Input: "1 2", ExpectedOutput: "3"},
	)
	executor := &scriptedExecutor{results: []runner.Result{{Stdout: "4\n"}}}
	svc := newGradingServiceForTest(newFakeSubmissionRepo(), assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, executor)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, Code: "print(4)"})
	require.NoError(t, err)
	require.Equal(t, "incorrect", resp.Verdict)
	require.Contains(t, resp.Feedback, `expected "3", got "4"`)
}

func TestGradingSubmitCodeTimeoutStaysUngraded(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedCodeAssignment(assignments,
		models.TestCase{ID: 1, Input: "", ExpectedOutput: "done"},
	)
	executor := &scriptedExecutor{results: []runner.Result{{TimedOut: true}}}
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, executor)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, Code: "while True: pass"})
	require.NoError(t, err)
	require.Equal(t, "ungraded", resp.Verdict)
	require.Nil(t, resp.IsCorrect)
	require.Contains(t, resp.Feedback, "time limit exceeded")
}

func TestGradingSubmitCodeNormalizesTrailingWhitespace(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedCodeAssignment(assignments,
		models.TestCase{ID: 1, Input: "", ExpectedOutput: "a\nb"},
	)
	executor := &scriptedExecutor{results: []runner.Result{{Stdout: "a \r\nb\t\n\n"}}}
	svc := newGradingServiceForTest(newFakeSubmissionRepo(), assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, executor)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, Code: "print('a')\nprint('b')"})
	require.NoError(t, err)
	require.Equal(t, "correct", resp.Verdict)
}

func TestGradingSubmitEssayResubmissionReopens(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignment := models.Assignment{LessonID: 1, Title: "Reflections", ProblemType: models.ProblemTypeEssay}
	require.NoError(t, assignments.Create(context.Background(), &assignment))
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	first, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignment.ID, AnswerText: "first draft"})
	require.NoError(t, err)
	require.Equal(t, "ungraded", first.Verdict)

	// A grader marks it correct, then the student resubmits.
	verdict := 1
	_, err = svc.Review(context.Background(), first.SubmissionID, dto.ReviewRequest{IsCorrect: &verdict, Feedback: "well argued"})
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignment.ID, AnswerText: "second draft"})
	require.NoError(t, err)
	require.Equal(t, first.SubmissionID, second.SubmissionID)
	require.Equal(t, "ungraded", second.Verdict)

	stored := submissions.submissions[first.SubmissionID]
	require.Equal(t, "second draft", stored.AnswerText)
	require.Nil(t, stored.IsCorrect)
	require.Empty(t, stored.Feedback)
	require.Len(t, submissions.submissions, 1)
}

func TestGradingReviewOverridesVerdict(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedChoiceAssignment(assignments)
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(2)})
	require.NoError(t, err)
	require.Equal(t, "incorrect", resp.Verdict)

	verdict := 1
	reviewed, err := svc.Review(context.Background(), resp.SubmissionID, dto.ReviewRequest{IsCorrect: &verdict, Feedback: "partial credit granted"})
	require.NoError(t, err)
	require.NotNil(t, reviewed.IsCorrect)
	require.Equal(t, 1, *reviewed.IsCorrect)
	require.Equal(t, "partial credit granted", reviewed.Feedback)

	// Repeating the same verdict updates in place, it never appends.
	again, err := svc.Review(context.Background(), resp.SubmissionID, dto.ReviewRequest{IsCorrect: &verdict, Feedback: "confirmed on second read"})
	require.NoError(t, err)
	require.Equal(t, resp.SubmissionID, again.ID)
	require.Equal(t, "confirmed on second read", again.Feedback)
	require.Len(t, submissions.submissions, 1)
}

func TestGradingReviewReopensWithNullVerdict(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedChoiceAssignment(assignments)
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, nil)

	resp, err := svc.Submit(context.Background(), 1, dto.SubmitRequest{AssignmentID: assignmentID, SelectedChoiceID: ptrUint(1)})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), resp.SubmissionID, dto.ReviewRequest{IsCorrect: nil, Feedback: "needs another look"})
	require.NoError(t, err)
	require.Nil(t, reviewed.IsCorrect)
}

func TestGradingReviewMissingSubmission(t *testing.T) {
	svc := newGradingServiceForTest(newFakeSubmissionRepo(), newFakeAssignmentRepo(), &scriptedTargets{}, nil)

	verdict := 0
	_, err := svc.Review(context.Background(), 999, dto.ReviewRequest{IsCorrect: &verdict})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGradingRunDoesNotRecord(t *testing.T) {
	assignments := newFakeAssignmentRepo()
	assignmentID := seedCodeAssignment(assignments,
		models.TestCase{ID: 1, Input: "hi", ExpectedOutput: "hi"},
	)
	executor := &scriptedExecutor{results: []runner.Result{{Stdout: "hi\n"}}}
	submissions := newFakeSubmissionRepo()
	svc := newGradingServiceForTest(submissions, assignments, &scriptedTargets{assigned: map[uint]bool{1: true}}, executor)

	resp, err := svc.Run(context.Background(), 1, dto.RunRequest{AssignmentID: assignmentID, Code: "print(input())"})
	require.NoError(t, err)
	require.True(t, resp.Passed)
	require.Equal(t, "all test cases passed", resp.Feedback)
	require.Empty(t, submissions.submissions)
}
