package dto

import (
	"time"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// SubmitRequest is the unified submit payload; the grading workflow picks
// the relevant field by the assignment's problem type.
type SubmitRequest struct {
	AssignmentID     uint   `json:"assignment_id" validate:"required,gt=0"`
	Code             string `json:"code"`
	SelectedChoiceID *uint  `json:"selected_choice_id" validate:"omitempty,gt=0"`
	AnswerText       string `json:"answer_text"`
}

// RunRequest executes code against an assignment's test cases without
// recording a submission.
type RunRequest struct {
	AssignmentID uint   `json:"assignment_id" validate:"required,gt=0"`
	Code         string `json:"code" validate:"required"`
}

// ReviewRequest is the grader override payload. IsCorrect uses the wire
// encoding 0/1; null reopens the submission to the ungraded state.
type ReviewRequest struct {
	IsCorrect *int   `json:"is_correct" validate:"omitempty,oneof=0 1"`
	Feedback  string `json:"feedback"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AssignmentID *uint `query:"assignment_id"`
	UserID       *uint `query:"user_id"`
}

// SubmitResponse is returned after a submission is processed.
type SubmitResponse struct {
	SubmissionID uint   `json:"submission_id"`
	IsCorrect    *int   `json:"is_correct"`
	Verdict      string `json:"verdict"`
	Feedback     string `json:"feedback"`
}

// RunResponse reports a practice run outcome.
type RunResponse struct {
	Passed   bool   `json:"passed"`
	Output   string `json:"output"`
	Feedback string `json:"feedback"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID               uint      `json:"id"`
	UserID           uint      `json:"user_id"`
	AssignmentID     uint      `json:"assignment_id"`
	ProblemType      string    `json:"problem_type"`
	Code             string    `json:"code,omitempty"`
	SelectedChoiceID *uint     `json:"selected_choice_id,omitempty"`
	AnswerText       string    `json:"answer_text,omitempty"`
	IsCorrect        *int      `json:"is_correct"`
	Verdict          string    `json:"verdict"`
	Feedback         string    `json:"feedback"`
	SubmittedAt      time.Time `json:"submitted_at"`
	Username         string    `json:"username,omitempty"`
	AssignmentTitle  string    `json:"assignment_title,omitempty"`
	QuestionText     string    `json:"question_text,omitempty"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:               model.ID,
		UserID:           model.UserID,
		AssignmentID:     model.AssignmentID,
		ProblemType:      string(model.ProblemType),
		Code:             model.Code,
		SelectedChoiceID: model.SelectedChoiceID,
		AnswerText:       model.AnswerText,
		IsCorrect:        model.IsCorrect,
		Verdict:          string(model.Verdict()),
		Feedback:         model.Feedback,
		SubmittedAt:      model.SubmittedAt,
	}

	if model.User.ID != 0 {
		response.Username = model.User.Username
	}

	if model.Assignment.ID != 0 {
		response.AssignmentTitle = model.Assignment.Title
		response.QuestionText = model.Assignment.QuestionText
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewSubmissionResponse(item))
	}

	return responses
}
