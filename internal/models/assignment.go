package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProblemType distinguishes the three grading life cycles.
type ProblemType string

const (
	ProblemTypeCode   ProblemType = "code"
	ProblemTypeChoice ProblemType = "choice"
	ProblemTypeEssay  ProblemType = "essay"
)

// Valid reports whether the problem type is one of the known values.
func (p ProblemType) Valid() bool {
	return p == ProblemTypeCode || p == ProblemTypeChoice || p == ProblemTypeEssay
}

// ExecMode selects how code submissions are driven against test cases.
type ExecMode string

const (
	// ExecModeStdin pipes the test-case input into the program and compares stdout.
	ExecModeStdin ExecMode = "stdin"
	// ExecModeFunction calls a named entry function with JSON-decoded arguments.
	ExecModeFunction ExecMode = "function"
)

// Assignment is a unit of work a student must complete.
type Assignment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	LessonID      uint           `gorm:"not null;index" json:"lesson_id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	QuestionText  string         `gorm:"type:text" json:"question_text"`
	InputExample  string         `gorm:"type:text" json:"input_example"`
	ProblemType   ProblemType    `gorm:"size:20;not null;default:code" json:"problem_type"`
	ExecMode      ExecMode       `gorm:"size:20;not null;default:stdin" json:"exec_mode"`
	EntryFunction string         `gorm:"size:255" json:"entry_function"`
	FileURL       string         `gorm:"size:512" json:"file_url"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Choices       []ChoiceOption `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"choices,omitempty"`
	TestCases     []TestCase     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	Targets       []Target       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"targets,omitempty"`
}

// ChoiceOption is one option of a choice-type assignment. Exactly one
// option per assignment carries IsCorrect.
type ChoiceOption struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	AssignmentID uint   `gorm:"not null;index" json:"assignment_id"`
	OptionText   string `gorm:"type:text;not null" json:"option_text"`
	DisplayOrder int    `gorm:"not null;default:0" json:"display_order"`
	IsCorrect    bool   `gorm:"not null;default:false" json:"is_correct"`
}

// TestCase drives the sandbox for a code-type assignment. Args holds the
// JSON-encoded argument list for function-mode assignments; it is unused
// in stdin mode.
type TestCase struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AssignmentID   uint           `gorm:"not null;index" json:"assignment_id"`
	Input          string         `gorm:"type:text" json:"input"`
	ExpectedOutput string         `gorm:"type:text" json:"expected_output"`
	Args           datatypes.JSON `json:"args,omitempty"`
	Comment        string         `gorm:"type:text" json:"comment"`
}

// TargetType classifies a distribution rule.
type TargetType string

const (
	TargetTypeAll   TargetType = "all"
	TargetTypeClass TargetType = "class"
	TargetTypeUser  TargetType = "user"
)

// Target is a distribution rule attached to an assignment. TargetID is
// nil for the "all" type, which must not coexist with other rows for the
// same assignment.
type Target struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AssignmentID uint       `gorm:"not null;index" json:"assignment_id"`
	TargetType   TargetType `gorm:"size:20;not null" json:"target_type"`
	TargetID     *uint      `json:"target_id"`
	CreatedAt    time.Time  `json:"created_at"`
}
