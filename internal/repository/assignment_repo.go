package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// AssignmentRepository defines data operations for assignments, their
// choice options and their test cases.
type AssignmentRepository interface {
	List(ctx context.Context) ([]models.Assignment, error)
	ListWithTargets(ctx context.Context) ([]models.Assignment, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error

	ListChoices(ctx context.Context, assignmentID uint) ([]models.ChoiceOption, error)
	GetChoice(ctx context.Context, choiceID, assignmentID uint) (models.ChoiceOption, error)
	ReplaceChoices(ctx context.Context, assignmentID uint, choices []models.ChoiceOption) error

	ListTestCases(ctx context.Context, assignmentID uint) ([]models.TestCase, error)
	GetTestCase(ctx context.Context, id uint) (models.TestCase, error)
	CreateTestCase(ctx context.Context, testCase *models.TestCase) error
	UpdateTestCase(ctx context.Context, testCase *models.TestCase) error
	DeleteTestCase(ctx context.Context, id uint) error
	ReplaceTestCases(ctx context.Context, assignmentID uint, cases []models.TestCase) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) List(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) ListWithTargets(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Preload("Targets").
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		Preload("TestCases").
		First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Choices", "TestCases", "Targets").Save(assignment).Error
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Assignment{}, id).Error
}

func (r *assignmentRepository) ListChoices(ctx context.Context, assignmentID uint) ([]models.ChoiceOption, error) {
	var choices []models.ChoiceOption
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("display_order ASC").
		Find(&choices).Error; err != nil {
		return nil, err
	}

	return choices, nil
}

func (r *assignmentRepository) GetChoice(ctx context.Context, choiceID, assignmentID uint) (models.ChoiceOption, error) {
	var choice models.ChoiceOption
	if err := r.db.WithContext(ctx).
		Where("id = ? AND assignment_id = ?", choiceID, assignmentID).
		First(&choice).Error; err != nil {
		return models.ChoiceOption{}, err
	}

	return choice, nil
}

// ReplaceChoices swaps the full choice set of an assignment atomically.
func (r *assignmentRepository) ReplaceChoices(ctx context.Context, assignmentID uint, choices []models.ChoiceOption) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assignment_id = ?", assignmentID).
			Delete(&models.ChoiceOption{}).Error; err != nil {
			return err
		}

		if len(choices) == 0 {
			return nil
		}

		for i := range choices {
			choices[i].AssignmentID = assignmentID
		}

		return tx.Create(&choices).Error
	})
}

func (r *assignmentRepository) ListTestCases(ctx context.Context, assignmentID uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id ASC").
		Find(&cases).Error; err != nil {
		return nil, err
	}

	return cases, nil
}

func (r *assignmentRepository) GetTestCase(ctx context.Context, id uint) (models.TestCase, error) {
	var testCase models.TestCase
	if err := r.db.WithContext(ctx).First(&testCase, id).Error; err != nil {
		return models.TestCase{}, err
	}

	return testCase, nil
}

func (r *assignmentRepository) CreateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Create(testCase).Error
}

func (r *assignmentRepository) UpdateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Save(testCase).Error
}

func (r *assignmentRepository) DeleteTestCase(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.TestCase{}, id).Error
}

// ReplaceTestCases swaps the full test-case set of an assignment atomically.
func (r *assignmentRepository) ReplaceTestCases(ctx context.Context, assignmentID uint, cases []models.TestCase) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assignment_id = ?", assignmentID).
			Delete(&models.TestCase{}).Error; err != nil {
			return err
		}

		if len(cases) == 0 {
			return nil
		}

		for i := range cases {
			cases[i].AssignmentID = assignmentID
		}

		return tx.Create(&cases).Error
	})
}
