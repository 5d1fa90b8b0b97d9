package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// ClassRepository defines data operations for classes.
type ClassRepository interface {
	List(ctx context.Context) ([]models.Class, error)
	GetByID(ctx context.Context, id uint) (models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id uint) error
	Reorder(ctx context.Context, orderedIDs []uint) error
	MaxDisplayOrder(ctx context.Context) (int, error)
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository instantiates the repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) List(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	if err := r.db.WithContext(ctx).
		Order("display_order ASC, id ASC").
		Find(&classes).Error; err != nil {
		return nil, err
	}

	return classes, nil
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).First(&class, id).Error; err != nil {
		return models.Class{}, err
	}

	return class, nil
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Create(class).Error
}

func (r *classRepository) Update(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Save(class).Error
}

// Delete removes a class and detaches its members in one transaction.
// Member users and their submissions are preserved; only class_id is
// nulled so class-type targets stop resolving to them.
func (r *classRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("class_id = ?", id).
			Update("class_id", nil).Error; err != nil {
			return err
		}

		return tx.Delete(&models.Class{}, id).Error
	})
}

// Reorder rewrites display_order to match the supplied ID sequence.
func (r *classRepository) Reorder(ctx context.Context, orderedIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index, classID := range orderedIDs {
			if err := tx.Model(&models.Class{}).
				Where("id = ?", classID).
				Update("display_order", index).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *classRepository) MaxDisplayOrder(ctx context.Context) (int, error) {
	var max *int
	if err := r.db.WithContext(ctx).Model(&models.Class{}).
		Select("MAX(display_order)").
		Scan(&max).Error; err != nil {
		return 0, err
	}

	if max == nil {
		return -1, nil
	}

	return *max, nil
}
