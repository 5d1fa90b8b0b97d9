package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// UserFilter narrows user queries.
type UserFilter struct {
	Role       *models.Role
	ClassID    *uint
	IDs        []uint
	Unassigned bool
}

// UserRepository defines data operations for users.
type UserRepository interface {
	List(ctx context.Context, filter UserFilter) ([]models.User, error)
	GetByID(ctx context.Context, id uint) (models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	AssignClass(ctx context.Context, classID uint, userIDs []uint) error
	RemoveFromClass(ctx context.Context, classID uint, userIDs []uint) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}

	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}

	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}

	if filter.Unassigned {
		query = query.Where("class_id IS NULL")
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// AssignClass moves the given students into a class; a student's previous
// class membership is overwritten (at most one class per student).
func (r *userRepository) AssignClass(ctx context.Context, classID uint, userIDs []uint) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND role = ?", userIDs, models.RoleStudent).
		Update("class_id", classID).Error
}

func (r *userRepository) RemoveFromClass(ctx context.Context, classID uint, userIDs []uint) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND class_id = ?", userIDs, classID).
		Update("class_id", nil).Error
}
