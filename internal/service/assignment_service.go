package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

// ErrAssignmentNotFound indicates an assignment could not be found.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrTestCaseNotFound indicates a test case could not be found.
var ErrTestCaseNotFound = errors.New("test case not found")

// ErrInvalidChoices indicates a choice set that breaks the single
// correct answer rule.
var ErrInvalidChoices = errors.New("choice assignments need at least two options and exactly one correct answer")

// AssignmentService manages assignments, their choices and test cases.
type AssignmentService interface {
	List(ctx context.Context, includeAnswers bool) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, id uint, includeAnswers bool) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, attachment *multipart.FileHeader) (dto.AssignmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, id uint) error
	ListTestCases(ctx context.Context, assignmentID uint) ([]dto.TestCaseResponse, error)
	CreateTestCase(ctx context.Context, payload dto.TestCaseCreateRequest) (dto.TestCaseResponse, error)
	ReplaceTestCases(ctx context.Context, assignmentID uint, payload dto.TestCaseReplaceRequest) ([]dto.TestCaseResponse, error)
	UpdateTestCase(ctx context.Context, id uint, payload dto.TestCaseUpdateRequest) (dto.TestCaseResponse, error)
	DeleteTestCase(ctx context.Context, id uint) error
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	catalog     repository.CatalogRepository
	targets     TargetService
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	uploader    FileUploader
	logger      zerolog.Logger
}

// NewAssignmentService constructs an AssignmentService instance. The
// uploader may be nil when attachment storage is not configured.
func NewAssignmentService(assignmentRepo repository.AssignmentRepository, catalogRepo repository.CatalogRepository, targets TargetService, validate *validator.Validate, uploader FileUploader, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		assignments: assignmentRepo,
		catalog:     catalogRepo,
		targets:     targets,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		uploader:    uploader,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) List(ctx context.Context, includeAnswers bool) ([]dto.AssignmentResponse, error) {
	// Staff listings carry the distribution rules alongside each row.
	if includeAnswers {
		assignments, err := s.assignments.ListWithTargets(ctx)
		if err != nil {
			return nil, err
		}
		return dto.NewAssignmentResponseSlice(assignments, true), nil
	}

	assignments, err := s.assignments.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments, false), nil
}

func (s *assignmentService) Get(ctx context.Context, id uint, includeAnswers bool) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment, includeAnswers), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, attachment *multipart.FileHeader) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if _, err := s.catalog.GetLesson(ctx, payload.LessonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrLessonNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	problemType := models.ProblemType(payload.ProblemType)
	if payload.ProblemType == "" {
		problemType = models.ProblemTypeCode
	}

	execMode := models.ExecMode(payload.ExecMode)
	if payload.ExecMode == "" {
		execMode = models.ExecModeStdin
	}

	if execMode == models.ExecModeFunction && payload.EntryFunction == "" {
		return dto.AssignmentResponse{}, fmt.Errorf("entry_function is required for function-mode assignments")
	}

	choices, err := buildChoices(problemType, payload.Choices, payload.CorrectChoiceIndex)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		LessonID:      payload.LessonID,
		Title:         payload.Title,
		Description:   s.sanitizer.Sanitize(payload.Description),
		QuestionText:  s.sanitizer.Sanitize(payload.QuestionText),
		InputExample:  payload.InputExample,
		ProblemType:   problemType,
		ExecMode:      execMode,
		EntryFunction: payload.EntryFunction,
		Choices:       choices,
	}

	// A code assignment's inline example doubles as its first test case.
	if problemType == models.ProblemTypeCode && payload.ExpectedOutput != "" {
		assignment.TestCases = []models.TestCase{{
			Input:          payload.InputExample,
			ExpectedOutput: payload.ExpectedOutput,
		}}
	}

	if attachment != nil {
		url, err := s.uploadAttachment(ctx, attachment)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.FileURL = url
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.TargetType != "" {
		replace := dto.TargetReplaceRequest{TargetType: payload.TargetType, TargetIDs: payload.TargetIDs}
		if _, err := s.targets.Replace(ctx, assignment.ID, replace); err != nil {
			return dto.AssignmentResponse{}, err
		}
	}

	created, err := s.assignments.GetByID(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().
		Uint("assignment_id", created.ID).
		Str("problem_type", string(created.ProblemType)).
		Msg("assignment created")

	return dto.NewAssignmentResponse(created, true), nil
}

func (s *assignmentService) uploadAttachment(ctx context.Context, attachment *multipart.FileHeader) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("attachment storage is not configured")
	}

	reader, err := attachment.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}

	url, err := s.uploader.Upload(ctx, attachment.Filename, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}

	return url, nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}
	if payload.Description != nil {
		assignment.Description = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.QuestionText != nil {
		assignment.QuestionText = s.sanitizer.Sanitize(*payload.QuestionText)
	}
	if payload.InputExample != nil {
		assignment.InputExample = *payload.InputExample
	}
	if payload.ProblemType != nil {
		assignment.ProblemType = models.ProblemType(*payload.ProblemType)
	}
	if payload.ExecMode != nil {
		assignment.ExecMode = models.ExecMode(*payload.ExecMode)
	}
	if payload.EntryFunction != nil {
		assignment.EntryFunction = *payload.EntryFunction
	}

	if assignment.ExecMode == models.ExecModeFunction && assignment.EntryFunction == "" {
		return dto.AssignmentResponse{}, fmt.Errorf("entry_function is required for function-mode assignments")
	}

	// Switching to the choice type without a replacement option set must
	// not leave the assignment ungradable.
	if assignment.ProblemType == models.ProblemTypeChoice && payload.Choices == nil {
		existing, err := s.assignments.ListChoices(ctx, assignment.ID)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		if !validChoiceSet(existing) {
			return dto.AssignmentResponse{}, ErrInvalidChoices
		}
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.Choices != nil {
		index := 0
		if payload.CorrectChoiceIndex != nil {
			index = *payload.CorrectChoiceIndex
		}
		choices, err := buildChoices(assignment.ProblemType, payload.Choices, index)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		if err := s.assignments.ReplaceChoices(ctx, assignment.ID, choices); err != nil {
			return dto.AssignmentResponse{}, err
		}
	}

	updated, err := s.assignments.GetByID(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", updated.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(updated, true), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint) error {
	if _, err := s.assignments.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	if err := s.assignments.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Uint("assignment_id", id).Msg("assignment deleted")

	return nil
}

func (s *assignmentService) ListTestCases(ctx context.Context, assignmentID uint) ([]dto.TestCaseResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	cases, err := s.assignments.ListTestCases(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewTestCaseResponseSlice(cases), nil
}

func (s *assignmentService) CreateTestCase(ctx context.Context, payload dto.TestCaseCreateRequest) (dto.TestCaseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TestCaseResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TestCaseResponse{}, ErrAssignmentNotFound
		}
		return dto.TestCaseResponse{}, err
	}

	if assignment.ProblemType != models.ProblemTypeCode {
		return dto.TestCaseResponse{}, fmt.Errorf("test cases only apply to code assignments")
	}

	testCase := models.TestCase{
		AssignmentID:   payload.AssignmentID,
		Input:          payload.Input,
		ExpectedOutput: payload.ExpectedOutput,
		Args:           payload.Args,
		Comment:        payload.Comment,
	}

	if err := s.assignments.CreateTestCase(ctx, &testCase); err != nil {
		return dto.TestCaseResponse{}, err
	}

	return dto.NewTestCaseResponse(testCase), nil
}

func (s *assignmentService) ReplaceTestCases(ctx context.Context, assignmentID uint, payload dto.TestCaseReplaceRequest) ([]dto.TestCaseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	if assignment.ProblemType != models.ProblemTypeCode {
		return nil, fmt.Errorf("test cases only apply to code assignments")
	}

	cases := make([]models.TestCase, 0, len(payload.TestCases))
	for _, item := range payload.TestCases {
		cases = append(cases, models.TestCase{
			AssignmentID:   assignmentID,
			Input:          item.Input,
			ExpectedOutput: item.ExpectedOutput,
			Args:           item.Args,
			Comment:        item.Comment,
		})
	}

	if err := s.assignments.ReplaceTestCases(ctx, assignmentID, cases); err != nil {
		return nil, err
	}

	stored, err := s.assignments.ListTestCases(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("count", len(stored)).
		Msg("test cases replaced")

	return dto.NewTestCaseResponseSlice(stored), nil
}

func (s *assignmentService) UpdateTestCase(ctx context.Context, id uint, payload dto.TestCaseUpdateRequest) (dto.TestCaseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TestCaseResponse{}, err
	}

	testCase, err := s.assignments.GetTestCase(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TestCaseResponse{}, ErrTestCaseNotFound
		}
		return dto.TestCaseResponse{}, err
	}

	if payload.Input != nil {
		testCase.Input = *payload.Input
	}
	if payload.ExpectedOutput != nil {
		testCase.ExpectedOutput = *payload.ExpectedOutput
	}
	if payload.Args != nil {
		testCase.Args = payload.Args
	}
	if payload.Comment != nil {
		testCase.Comment = *payload.Comment
	}

	if err := s.assignments.UpdateTestCase(ctx, &testCase); err != nil {
		return dto.TestCaseResponse{}, err
	}

	return dto.NewTestCaseResponse(testCase), nil
}

func (s *assignmentService) DeleteTestCase(ctx context.Context, id uint) error {
	if _, err := s.assignments.GetTestCase(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTestCaseNotFound
		}
		return err
	}

	return s.assignments.DeleteTestCase(ctx, id)
}

// buildChoices turns the flat option list into rows, marking the single
// correct answer by index. Non-choice assignments must not carry options.
func buildChoices(problemType models.ProblemType, options []string, correctIndex int) ([]models.ChoiceOption, error) {
	if problemType != models.ProblemTypeChoice {
		if len(options) > 0 {
			return nil, fmt.Errorf("choices only apply to choice assignments")
		}
		return nil, nil
	}

	if len(options) < 2 {
		return nil, ErrInvalidChoices
	}

	if correctIndex < 0 || correctIndex >= len(options) {
		return nil, ErrInvalidChoices
	}

	choices := make([]models.ChoiceOption, 0, len(options))
	for i, text := range options {
		if text == "" {
			return nil, ErrInvalidChoices
		}
		choices = append(choices, models.ChoiceOption{
			OptionText:   text,
			DisplayOrder: i,
			IsCorrect:    i == correctIndex,
		})
	}

	return choices, nil
}

// validChoiceSet reports whether stored options still satisfy the
// single-correct-answer invariant.
func validChoiceSet(choices []models.ChoiceOption) bool {
	if len(choices) < 2 {
		return false
	}

	correct := 0
	for _, choice := range choices {
		if choice.IsCorrect {
			correct++
		}
	}

	return correct == 1
}
