package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// AssignmentCreateRequest describes the multipart payload for creating an
// assignment. Choices and TargetIDs arrive as JSON-encoded form fields.
type AssignmentCreateRequest struct {
	LessonID           uint     `form:"lesson_id" validate:"required,gt=0"`
	Title              string   `form:"title" validate:"required,max=255"`
	Description        string   `form:"description"`
	QuestionText       string   `form:"question_text"`
	InputExample       string   `form:"input_example"`
	ExpectedOutput     string   `form:"expected_output"`
	ProblemType        string   `form:"problem_type" validate:"omitempty,oneof=code choice essay"`
	ExecMode           string   `form:"exec_mode" validate:"omitempty,oneof=stdin function"`
	EntryFunction      string   `form:"entry_function" validate:"omitempty,max=255"`
	Choices            []string `form:"choices" validate:"omitempty,dive,required"`
	CorrectChoiceIndex int      `form:"correct_answer_index" validate:"gte=0"`
	TargetType         string   `form:"target_type" validate:"omitempty,oneof=all users classes none"`
	TargetIDs          []uint   `form:"target_ids" validate:"omitempty,dive,gt=0"`
}

// AssignmentUpdateRequest carries partial assignment edits.
type AssignmentUpdateRequest struct {
	Title              *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description        *string  `json:"description"`
	QuestionText       *string  `json:"question_text"`
	InputExample       *string  `json:"input_example"`
	ExpectedOutput     *string  `json:"expected_output"`
	ProblemType        *string  `json:"problem_type" validate:"omitempty,oneof=code choice essay"`
	ExecMode           *string  `json:"exec_mode" validate:"omitempty,oneof=stdin function"`
	EntryFunction      *string  `json:"entry_function" validate:"omitempty,max=255"`
	Choices            []string `json:"choices" validate:"omitempty,dive,required"`
	CorrectChoiceIndex *int     `json:"correct_answer_index" validate:"omitempty,gte=0"`
}

// TargetReplaceRequest replaces the full target set of an assignment.
// Type "none" clears all targets, leaving the assignment visible to nobody.
type TargetReplaceRequest struct {
	TargetType string `json:"target_type" validate:"required,oneof=all users classes none"`
	TargetIDs  []uint `json:"target_ids" validate:"omitempty,dive,gt=0"`
}

// TestCaseCreateRequest attaches a test case to a code assignment.
type TestCaseCreateRequest struct {
	AssignmentID   uint           `json:"assignment_id" validate:"required,gt=0"`
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expected_output" validate:"required"`
	Args           datatypes.JSON `json:"args"`
	Comment        string         `json:"comment"`
}

// TestCaseReplaceRequest swaps the full test-case set of a code
// assignment in one call.
type TestCaseReplaceRequest struct {
	TestCases []TestCaseItem `json:"test_cases" validate:"required,dive"`
}

// TestCaseItem is one entry of a bulk test-case replacement.
type TestCaseItem struct {
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expected_output" validate:"required"`
	Args           datatypes.JSON `json:"args"`
	Comment        string         `json:"comment"`
}

// TestCaseUpdateRequest carries partial test case edits.
type TestCaseUpdateRequest struct {
	Input          *string        `json:"input"`
	ExpectedOutput *string        `json:"expected_output" validate:"omitempty,min=1"`
	Args           datatypes.JSON `json:"args"`
	Comment        *string        `json:"comment"`
}

// AssignmentResponse is returned to API clients when viewing assignments.
type AssignmentResponse struct {
	ID            uint             `json:"id"`
	LessonID      uint             `json:"lesson_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	QuestionText  string           `json:"question_text"`
	InputExample  string           `json:"input_example"`
	ProblemType   string           `json:"problem_type"`
	ExecMode      string           `json:"exec_mode"`
	EntryFunction string           `json:"entry_function,omitempty"`
	FileURL       string           `json:"file_url,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Choices       []ChoiceResponse `json:"choices,omitempty"`
	Targets       []TargetResponse `json:"targets,omitempty"`
}

// ChoiceResponse serializes a choice option. IsCorrect is only populated
// for staff viewers.
type ChoiceResponse struct {
	ID           uint   `json:"id"`
	AssignmentID uint   `json:"assignment_id"`
	OptionText   string `json:"option_text"`
	DisplayOrder int    `json:"display_order"`
	IsCorrect    *bool  `json:"is_correct,omitempty"`
}

// TargetResponse serializes a distribution rule.
type TargetResponse struct {
	ID           uint   `json:"id"`
	AssignmentID uint   `json:"assignment_id"`
	TargetType   string `json:"target_type"`
	TargetID     *uint  `json:"target_id"`
	TargetName   string `json:"target_name,omitempty"`
}

// TestCaseResponse serializes a test case.
type TestCaseResponse struct {
	ID             uint           `json:"id"`
	AssignmentID   uint           `json:"assignment_id"`
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expected_output"`
	Args           datatypes.JSON `json:"args,omitempty"`
	Comment        string         `json:"comment"`
}

// NewAssignmentResponse converts an Assignment model into a DTO. Choice
// correctness flags are included only when includeAnswers is set.
func NewAssignmentResponse(model models.Assignment, includeAnswers bool) AssignmentResponse {
	response := AssignmentResponse{
		ID:            model.ID,
		LessonID:      model.LessonID,
		Title:         model.Title,
		Description:   model.Description,
		QuestionText:  model.QuestionText,
		InputExample:  model.InputExample,
		ProblemType:   string(model.ProblemType),
		ExecMode:      string(model.ExecMode),
		EntryFunction: model.EntryFunction,
		FileURL:       model.FileURL,
		CreatedAt:     model.CreatedAt,
	}

	for _, choice := range model.Choices {
		response.Choices = append(response.Choices, NewChoiceResponse(choice, includeAnswers))
	}

	for _, target := range model.Targets {
		response.Targets = append(response.Targets, NewTargetResponse(target))
	}

	return response
}

// NewChoiceResponse converts a ChoiceOption model into a DTO.
func NewChoiceResponse(model models.ChoiceOption, includeAnswer bool) ChoiceResponse {
	response := ChoiceResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		OptionText:   model.OptionText,
		DisplayOrder: model.DisplayOrder,
	}

	if includeAnswer {
		correct := model.IsCorrect
		response.IsCorrect = &correct
	}

	return response
}

// NewAssignmentResponseSlice converts assignment models into DTOs.
func NewAssignmentResponseSlice(items []models.Assignment, includeAnswers bool) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewAssignmentResponse(item, includeAnswers))
	}

	return responses
}

// NewTargetResponse converts a Target model into a DTO.
func NewTargetResponse(model models.Target) TargetResponse {
	return TargetResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		TargetType:   string(model.TargetType),
		TargetID:     model.TargetID,
	}
}

// NewTestCaseResponse converts a TestCase model into a DTO.
func NewTestCaseResponse(model models.TestCase) TestCaseResponse {
	return TestCaseResponse{
		ID:             model.ID,
		AssignmentID:   model.AssignmentID,
		Input:          model.Input,
		ExpectedOutput: model.ExpectedOutput,
		Args:           model.Args,
		Comment:        model.Comment,
	}
}

// NewTestCaseResponseSlice converts test case models into DTOs.
func NewTestCaseResponseSlice(items []models.TestCase) []TestCaseResponse {
	responses := make([]TestCaseResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewTestCaseResponse(item))
	}

	return responses
}
