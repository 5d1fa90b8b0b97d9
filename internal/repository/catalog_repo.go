package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// CatalogRepository defines data operations for materials and lessons.
type CatalogRepository interface {
	ListMaterials(ctx context.Context) ([]models.Material, error)
	GetMaterial(ctx context.Context, id uint) (models.Material, error)
	CreateMaterial(ctx context.Context, material *models.Material) error
	UpdateMaterial(ctx context.Context, material *models.Material) error
	DeleteMaterial(ctx context.Context, id uint) error
	ListLessons(ctx context.Context) ([]models.Lesson, error)
	ListLessonsByMaterial(ctx context.Context, materialID uint) ([]models.Lesson, error)
	GetLesson(ctx context.Context, id uint) (models.Lesson, error)
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	UpdateLesson(ctx context.Context, lesson *models.Lesson) error
	DeleteLesson(ctx context.Context, id uint) error
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository instantiates the repository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListMaterials(ctx context.Context) ([]models.Material, error) {
	var materials []models.Material
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&materials).Error; err != nil {
		return nil, err
	}

	return materials, nil
}

func (r *catalogRepository) GetMaterial(ctx context.Context, id uint) (models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).Preload("Lessons").First(&material, id).Error; err != nil {
		return models.Material{}, err
	}

	return material, nil
}

func (r *catalogRepository) CreateMaterial(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *catalogRepository) UpdateMaterial(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Save(material).Error
}

func (r *catalogRepository) DeleteMaterial(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Material{}, id).Error
}

func (r *catalogRepository) ListLessons(ctx context.Context) ([]models.Lesson, error) {
	var lessons []models.Lesson
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&lessons).Error; err != nil {
		return nil, err
	}

	return lessons, nil
}

func (r *catalogRepository) ListLessonsByMaterial(ctx context.Context, materialID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	if err := r.db.WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("id ASC").
		Find(&lessons).Error; err != nil {
		return nil, err
	}

	return lessons, nil
}

func (r *catalogRepository) GetLesson(ctx context.Context, id uint) (models.Lesson, error) {
	var lesson models.Lesson
	if err := r.db.WithContext(ctx).First(&lesson, id).Error; err != nil {
		return models.Lesson{}, err
	}

	return lesson, nil
}

func (r *catalogRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	return r.db.WithContext(ctx).Create(lesson).Error
}

func (r *catalogRepository) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	return r.db.WithContext(ctx).Save(lesson).Error
}

func (r *catalogRepository) DeleteLesson(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Lesson{}, id).Error
}
