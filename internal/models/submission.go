package models

import "time"

// Verdict is the correctness outcome of a submission.
type Verdict string

const (
	VerdictUngraded  Verdict = "ungraded"
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
)

// Submission is one attempt by a user at an assignment. IsCorrect is nil
// while the attempt awaits grading (essays always start there; code only
// when the sandbox could not produce a verdict). Choice and code attempts
// append new rows; essay attempts update in place.
type Submission struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UserID           uint        `gorm:"not null;index" json:"user_id"`
	AssignmentID     uint        `gorm:"not null;index" json:"assignment_id"`
	ProblemType      ProblemType `gorm:"size:20;not null" json:"problem_type"`
	Code             string      `gorm:"type:text" json:"code,omitempty"`
	SelectedChoiceID *uint       `json:"selected_choice_id,omitempty"`
	AnswerText       string      `gorm:"type:text" json:"answer_text,omitempty"`
	IsCorrect        *int        `json:"is_correct"`
	Feedback         string      `gorm:"type:text" json:"feedback"`
	SubmittedAt      time.Time   `gorm:"autoCreateTime;index" json:"submitted_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	User             User        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"user,omitempty"`
	Assignment       Assignment  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment,omitempty"`
}

// Verdict maps the stored tri-state onto the grading state machine.
func (s Submission) Verdict() Verdict {
	switch {
	case s.IsCorrect == nil:
		return VerdictUngraded
	case *s.IsCorrect == 1:
		return VerdictCorrect
	default:
		return VerdictIncorrect
	}
}

// Graded reports whether a verdict has been recorded.
func (s Submission) Graded() bool {
	return s.IsCorrect != nil
}
