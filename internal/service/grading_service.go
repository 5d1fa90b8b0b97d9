package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/observability"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
	"github.com/mizuki-lab/shukudai-api/pkg/runner"
)

// ErrSubmissionNotFound indicates a submission could not be found.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrNotAssigned indicates the assignment does not reach the user.
var ErrNotAssigned = errors.New("assignment is not assigned to this user")

// ErrChoiceNotFound indicates the selected option does not belong to
// the assignment.
var ErrChoiceNotFound = errors.New("selected choice not found")

// defaultRunnerImage runs submitted code. Python is the only supported
// submission language.
const defaultRunnerImage = "python:3.12-alpine"

// functionHarness wraps a function-mode submission. The argument list
// arrives JSON-encoded on stdin so user code never has to be spliced
// with data.
const functionHarness = `

if __name__ == "__main__":
    import sys as _sys, json as _json
    _raw = _sys.stdin.read()
    _args = _json.loads(_raw) if _raw.strip() else []
    _out = %s(*_args)
    if _out is not None:
        print(_out)
`

// GradingService routes submissions through the per-type grading life
// cycle and records manual review decisions.
type GradingService interface {
	Submit(ctx context.Context, userID uint, payload dto.SubmitRequest) (dto.SubmitResponse, error)
	// Run executes code against an assignment's test cases without
	// recording anything.
	Run(ctx context.Context, userID uint, payload dto.RunRequest) (dto.RunResponse, error)
	// Review records a grader's decision on a submission. A null
	// verdict reopens it to the ungraded state.
	Review(ctx context.Context, submissionID uint, payload dto.ReviewRequest) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	targets     TargetService
	executor    runner.Executor
	events      *GradingEvents
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	image       string
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewGradingService constructs a GradingService instance. The executor
// may be nil, in which case code submissions fail cleanly.
func NewGradingService(submissionRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, targets TargetService, executor runner.Executor, events *GradingEvents, validate *validator.Validate, logger zerolog.Logger) GradingService {
	return &gradingService{
		submissions: submissionRepo,
		assignments: assignmentRepo,
		targets:     targets,
		executor:    executor,
		events:      events,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		image:       defaultRunnerImage,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/mizuki-lab/shukudai-api/internal/service/grading"),
	}
}

func (s *gradingService) Submit(ctx context.Context, userID uint, payload dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "grading.submit", trace.WithAttributes(
		attribute.Int("user.id", int(userID)),
		attribute.Int("assignment.id", int(payload.AssignmentID)),
	))
	defer span.End()

	assignment, err := s.assignments.GetByID(spanCtx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmitResponse{}, err
	}

	assigned, err := s.targets.IsAssigned(spanCtx, userID, assignment.ID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if !assigned {
		span.SetStatus(codes.Error, "not assigned")
		return dto.SubmitResponse{}, ErrNotAssigned
	}

	span.SetAttributes(attribute.String("assignment.problem_type", string(assignment.ProblemType)))

	var submission models.Submission
	switch assignment.ProblemType {
	case models.ProblemTypeChoice:
		submission, err = s.submitChoice(spanCtx, userID, assignment, payload)
	case models.ProblemTypeCode:
		submission, err = s.submitCode(spanCtx, userID, assignment, payload)
	case models.ProblemTypeEssay:
		submission, err = s.submitEssay(spanCtx, userID, assignment, payload)
	default:
		err = fmt.Errorf("unknown problem type %q", assignment.ProblemType)
	}
	if err != nil {
		span.RecordError(err)
		return dto.SubmitResponse{}, err
	}

	verdict := submission.Verdict()
	observability.SubmissionsProcessed().WithLabelValues(string(assignment.ProblemType), string(verdict)).Inc()

	s.events.Publish(GradingEvent{
		SubmissionID: submission.ID,
		AssignmentID: assignment.ID,
		UserID:       userID,
		ProblemType:  string(assignment.ProblemType),
		Verdict:      string(verdict),
	})

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("user_id", userID).
		Uint("assignment_id", assignment.ID).
		Str("verdict", string(verdict)).
		Msg("submission processed")

	return dto.SubmitResponse{
		SubmissionID: submission.ID,
		IsCorrect:    submission.IsCorrect,
		Verdict:      string(verdict),
		Feedback:     submission.Feedback,
	}, nil
}

// submitChoice grades instantly by comparing the selected option
// against the stored answer key.
func (s *gradingService) submitChoice(ctx context.Context, userID uint, assignment models.Assignment, payload dto.SubmitRequest) (models.Submission, error) {
	if payload.SelectedChoiceID == nil {
		return models.Submission{}, fmt.Errorf("selected_choice_id is required for choice assignments")
	}

	if !validChoiceSet(assignment.Choices) {
		return models.Submission{}, ErrInvalidChoices
	}

	choice, err := s.assignments.GetChoice(ctx, *payload.SelectedChoiceID, assignment.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrChoiceNotFound
		}
		return models.Submission{}, err
	}

	verdict := 0
	if choice.IsCorrect {
		verdict = 1
	}

	submission := models.Submission{
		UserID:           userID,
		AssignmentID:     assignment.ID,
		ProblemType:      models.ProblemTypeChoice,
		SelectedChoiceID: payload.SelectedChoiceID,
		IsCorrect:        &verdict,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// submitCode runs the code against every test case in the sandbox. A
// failed case yields an incorrect verdict with the mismatch as
// feedback; a sandbox timeout or failure leaves the attempt ungraded
// for manual review.
func (s *gradingService) submitCode(ctx context.Context, userID uint, assignment models.Assignment, payload dto.SubmitRequest) (models.Submission, error) {
	if strings.TrimSpace(payload.Code) == "" {
		return models.Submission{}, fmt.Errorf("code is required for code assignments")
	}

	verdict, feedback, err := s.judge(ctx, assignment, payload.Code)
	if err != nil {
		return models.Submission{}, err
	}

	submission := models.Submission{
		UserID:       userID,
		AssignmentID: assignment.ID,
		ProblemType:  models.ProblemTypeCode,
		Code:         payload.Code,
		IsCorrect:    verdict,
		Feedback:     feedback,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// submitEssay stores the answer for manual review. A resubmission
// updates the existing attempt in place and reopens its verdict, even
// when it was already graded.
func (s *gradingService) submitEssay(ctx context.Context, userID uint, assignment models.Assignment, payload dto.SubmitRequest) (models.Submission, error) {
	answer := strings.TrimSpace(s.sanitizer.Sanitize(payload.AnswerText))
	if answer == "" {
		return models.Submission{}, fmt.Errorf("answer_text is required for essay assignments")
	}

	existing, err := s.submissions.LatestByUserAssignment(ctx, userID, assignment.ID)
	if err == nil {
		if _, err := s.submissions.UpdateAnswer(ctx, existing.ID, answer); err != nil {
			return models.Submission{}, err
		}
		existing.AnswerText = answer
		existing.IsCorrect = nil
		existing.Feedback = ""
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Submission{}, err
	}

	submission := models.Submission{
		UserID:       userID,
		AssignmentID: assignment.ID,
		ProblemType:  models.ProblemTypeEssay,
		AnswerText:   answer,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (s *gradingService) Run(ctx context.Context, userID uint, payload dto.RunRequest) (dto.RunResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RunResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RunResponse{}, ErrAssignmentNotFound
		}
		return dto.RunResponse{}, err
	}

	if assignment.ProblemType != models.ProblemTypeCode {
		return dto.RunResponse{}, fmt.Errorf("only code assignments can be run")
	}

	assigned, err := s.targets.IsAssigned(ctx, userID, assignment.ID)
	if err != nil {
		return dto.RunResponse{}, err
	}
	if !assigned {
		return dto.RunResponse{}, ErrNotAssigned
	}

	verdict, feedback, err := s.judge(ctx, assignment, payload.Code)
	if err != nil {
		return dto.RunResponse{}, err
	}

	passed := verdict != nil && *verdict == 1
	if feedback == "" && passed {
		feedback = "all test cases passed"
	}

	return dto.RunResponse{Passed: passed, Feedback: feedback}, nil
}

// judge returns the wire verdict (1, 0 or nil for ungraded) plus
// human-readable feedback.
func (s *gradingService) judge(ctx context.Context, assignment models.Assignment, code string) (*int, string, error) {
	if s.executor == nil {
		return nil, "", fmt.Errorf("code execution is not configured")
	}

	cases := assignment.TestCases
	if len(cases) == 0 {
		return nil, "assignment has no test cases", nil
	}

	source := code
	if assignment.ExecMode == models.ExecModeFunction {
		source = code + fmt.Sprintf(functionHarness, assignment.EntryFunction)
	}

	correct := 1
	incorrect := 0

	for i, testCase := range cases {
		stdin := testCase.Input
		if assignment.ExecMode == models.ExecModeFunction {
			stdin = string(testCase.Args)
		}

		result, err := s.executor.Run(ctx, runner.Request{
			Image: s.image,
			Cmd:   []string{"python3", "-c", source},
			Stdin: stdin,
		})
		if result.TimedOut {
			return nil, fmt.Sprintf("test case %d: time limit exceeded", i+1), nil
		}
		if err != nil {
			s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("sandbox run failed")
			return nil, "execution failed, awaiting manual review", nil
		}

		if result.ExitCode != 0 {
			return &incorrect, fmt.Sprintf("test case %d: runtime error: %s", i+1, strings.TrimSpace(result.Stderr)), nil
		}

		got := normalizeOutput(result.Stdout)
		want := normalizeOutput(testCase.ExpectedOutput)
		if got != want {
			return &incorrect, fmt.Sprintf("test case %d: expected %q, got %q", i+1, want, got), nil
		}
	}

	return &correct, "", nil
}

// normalizeOutput strips trailing whitespace per line and surrounding
// blank lines so cosmetic differences never flip a verdict.
func normalizeOutput(out string) string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (s *gradingService) Review(ctx context.Context, submissionID uint, payload dto.ReviewRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))

	affected, err := s.submissions.UpdateVerdict(ctx, submissionID, payload.IsCorrect, feedback)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if affected == 0 {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	verdict := submission.Verdict()
	observability.ReviewsRecorded().WithLabelValues(string(verdict)).Inc()

	s.events.Publish(GradingEvent{
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		UserID:       submission.UserID,
		ProblemType:  string(submission.ProblemType),
		Verdict:      string(verdict),
		Reviewed:     true,
	})

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("verdict", string(verdict)).
		Msg("review recorded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *gradingService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		UserID:       filter.UserID,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *gradingService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}
