package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

// ErrMaterialNotFound indicates a material could not be found.
var ErrMaterialNotFound = errors.New("material not found")

// ErrLessonNotFound indicates a lesson could not be found.
var ErrLessonNotFound = errors.New("lesson not found")

// CatalogService manages the material and lesson hierarchy.
type CatalogService interface {
	ListMaterials(ctx context.Context) ([]dto.MaterialResponse, error)
	GetMaterial(ctx context.Context, id uint) (dto.MaterialResponse, error)
	CreateMaterial(ctx context.Context, payload dto.MaterialCreateRequest) (dto.MaterialResponse, error)
	UpdateMaterial(ctx context.Context, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error)
	DeleteMaterial(ctx context.Context, id uint) error
	ListLessons(ctx context.Context, materialID *uint) ([]dto.LessonResponse, error)
	GetLesson(ctx context.Context, id uint) (dto.LessonResponse, error)
	CreateLesson(ctx context.Context, payload dto.LessonCreateRequest) (dto.LessonResponse, error)
	UpdateLesson(ctx context.Context, id uint, payload dto.LessonUpdateRequest) (dto.LessonResponse, error)
	DeleteLesson(ctx context.Context, id uint) error
}

type catalogService struct {
	repo      repository.CatalogRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewCatalogService constructs a CatalogService instance.
func NewCatalogService(repo repository.CatalogRepository, validate *validator.Validate, logger zerolog.Logger) CatalogService {
	return &catalogService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *catalogService) ListMaterials(ctx context.Context) ([]dto.MaterialResponse, error) {
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewMaterialResponseSlice(materials), nil
}

func (s *catalogService) GetMaterial(ctx context.Context, id uint) (dto.MaterialResponse, error) {
	material, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MaterialResponse{}, ErrMaterialNotFound
		}
		return dto.MaterialResponse{}, err
	}

	return dto.NewMaterialResponse(material), nil
}

func (s *catalogService) CreateMaterial(ctx context.Context, payload dto.MaterialCreateRequest) (dto.MaterialResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	material := models.Material{
		Title:       s.sanitizer.Sanitize(payload.Title),
		Description: s.sanitizer.Sanitize(payload.Description),
	}

	if err := s.repo.CreateMaterial(ctx, &material); err != nil {
		return dto.MaterialResponse{}, err
	}

	s.logger.Info().Uint("material_id", material.ID).Msg("material created")

	return dto.NewMaterialResponse(material), nil
}

func (s *catalogService) UpdateMaterial(ctx context.Context, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	material, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MaterialResponse{}, ErrMaterialNotFound
		}
		return dto.MaterialResponse{}, err
	}

	if payload.Title != nil {
		material.Title = s.sanitizer.Sanitize(*payload.Title)
	}

	if payload.Description != nil {
		material.Description = s.sanitizer.Sanitize(*payload.Description)
	}

	if err := s.repo.UpdateMaterial(ctx, &material); err != nil {
		return dto.MaterialResponse{}, err
	}

	return dto.NewMaterialResponse(material), nil
}

func (s *catalogService) DeleteMaterial(ctx context.Context, id uint) error {
	if _, err := s.repo.GetMaterial(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}

	if err := s.repo.DeleteMaterial(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Uint("material_id", id).Msg("material deleted")

	return nil
}

func (s *catalogService) ListLessons(ctx context.Context, materialID *uint) ([]dto.LessonResponse, error) {
	var (
		lessons []models.Lesson
		err     error
	)

	if materialID != nil {
		lessons, err = s.repo.ListLessonsByMaterial(ctx, *materialID)
	} else {
		lessons, err = s.repo.ListLessons(ctx)
	}
	if err != nil {
		return nil, err
	}

	return dto.NewLessonResponseSlice(lessons), nil
}

func (s *catalogService) GetLesson(ctx context.Context, id uint) (dto.LessonResponse, error) {
	lesson, err := s.repo.GetLesson(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LessonResponse{}, ErrLessonNotFound
		}
		return dto.LessonResponse{}, err
	}

	return dto.NewLessonResponse(lesson), nil
}

func (s *catalogService) CreateLesson(ctx context.Context, payload dto.LessonCreateRequest) (dto.LessonResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LessonResponse{}, err
	}

	if _, err := s.repo.GetMaterial(ctx, payload.MaterialID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LessonResponse{}, ErrMaterialNotFound
		}
		return dto.LessonResponse{}, err
	}

	lesson := models.Lesson{
		MaterialID:  payload.MaterialID,
		Title:       s.sanitizer.Sanitize(payload.Title),
		Description: s.sanitizer.Sanitize(payload.Description),
	}

	if err := s.repo.CreateLesson(ctx, &lesson); err != nil {
		return dto.LessonResponse{}, err
	}

	s.logger.Info().Uint("lesson_id", lesson.ID).Uint("material_id", lesson.MaterialID).Msg("lesson created")

	return dto.NewLessonResponse(lesson), nil
}

func (s *catalogService) UpdateLesson(ctx context.Context, id uint, payload dto.LessonUpdateRequest) (dto.LessonResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LessonResponse{}, err
	}

	lesson, err := s.repo.GetLesson(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LessonResponse{}, ErrLessonNotFound
		}
		return dto.LessonResponse{}, err
	}

	if payload.Title != nil {
		lesson.Title = s.sanitizer.Sanitize(*payload.Title)
	}

	if payload.Description != nil {
		lesson.Description = s.sanitizer.Sanitize(*payload.Description)
	}

	if err := s.repo.UpdateLesson(ctx, &lesson); err != nil {
		return dto.LessonResponse{}, err
	}

	return dto.NewLessonResponse(lesson), nil
}

func (s *catalogService) DeleteLesson(ctx context.Context, id uint) error {
	if _, err := s.repo.GetLesson(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLessonNotFound
		}
		return err
	}

	if err := s.repo.DeleteLesson(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Uint("lesson_id", id).Msg("lesson deleted")

	return nil
}
