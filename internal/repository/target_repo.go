package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// TargetRepository defines data operations for distribution rules.
type TargetRepository interface {
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Target, error)
	// Replace deletes every target row of the assignment and inserts the
	// new set inside one transaction. A partially applied replace must
	// never become visible.
	Replace(ctx context.Context, assignmentID uint, targets []models.Target) error
	Delete(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) (int64, error)
	// ResolveAssignments returns the assignments distributed to the given
	// student, evaluated live against the current target rows.
	ResolveAssignments(ctx context.Context, userID uint) ([]models.Assignment, error)
}

type targetRepository struct {
	db *gorm.DB
}

// NewTargetRepository instantiates the repository.
func NewTargetRepository(db *gorm.DB) TargetRepository {
	return &targetRepository{db: db}
}

func (r *targetRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Target, error) {
	var targets []models.Target
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id ASC").
		Find(&targets).Error; err != nil {
		return nil, err
	}

	return targets, nil
}

func (r *targetRepository) Replace(ctx context.Context, assignmentID uint, targets []models.Target) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assignment_id = ?", assignmentID).
			Delete(&models.Target{}).Error; err != nil {
			return err
		}

		if len(targets) == 0 {
			return nil
		}

		for i := range targets {
			targets[i].ID = 0
			targets[i].AssignmentID = assignmentID
		}

		return tx.Create(&targets).Error
	})
}

func (r *targetRepository) Delete(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) (int64, error) {
	query := r.db.WithContext(ctx).
		Where("assignment_id = ? AND target_type = ?", assignmentID, targetType)

	if targetType == models.TargetTypeAll {
		query = query.Where("target_id IS NULL")
	} else {
		query = query.Where("target_id = ?", targetID)
	}

	result := query.Delete(&models.Target{})
	return result.RowsAffected, result.Error
}

func (r *targetRepository) ResolveAssignments(ctx context.Context, userID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where(`
			EXISTS (SELECT 1 FROM users u WHERE u.id = ? AND u.role = 'student')
			AND (
				EXISTS (SELECT 1 FROM targets t WHERE t.assignment_id = assignments.id AND t.target_type = 'all')
				OR EXISTS (SELECT 1 FROM targets t WHERE t.assignment_id = assignments.id AND t.target_type = 'user' AND t.target_id = ?)
				OR EXISTS (
					SELECT 1 FROM targets t
					WHERE t.assignment_id = assignments.id AND t.target_type = 'class'
					AND t.target_id = (SELECT class_id FROM users WHERE id = ? AND class_id IS NOT NULL)
				)
			)`, userID, userID, userID).
		Order("created_at DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}
