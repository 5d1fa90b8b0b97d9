package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

// ErrClassNotFound indicates a class could not be found.
var ErrClassNotFound = errors.New("class not found")

// ClassService manages classes and their membership.
type ClassService interface {
	List(ctx context.Context) ([]dto.ClassResponse, error)
	Get(ctx context.Context, id uint) (dto.ClassResponse, error)
	Create(ctx context.Context, payload dto.ClassCreateRequest) (dto.ClassResponse, error)
	Update(ctx context.Context, id uint, payload dto.ClassUpdateRequest) (dto.ClassResponse, error)
	Delete(ctx context.Context, id uint) error
	Reorder(ctx context.Context, payload dto.ClassReorderRequest) ([]dto.ClassResponse, error)
	ListMembers(ctx context.Context, id uint) ([]dto.UserResponse, error)
	AddMembers(ctx context.Context, id uint, payload dto.ClassMembersRequest) error
	RemoveMembers(ctx context.Context, id uint, payload dto.ClassMembersRequest) error
}

type classService struct {
	classes   repository.ClassRepository
	users     repository.UserRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(classRepo repository.ClassRepository, userRepo repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) ClassService {
	return &classService{
		classes:   classRepo,
		users:     userRepo,
		validator: validate,
		logger:    logger.With().Str("component", "class_service").Logger(),
	}
}

func (s *classService) List(ctx context.Context) ([]dto.ClassResponse, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewClassResponseSlice(classes), nil
}

func (s *classService) Get(ctx context.Context, id uint) (dto.ClassResponse, error) {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}

	return dto.NewClassResponse(class), nil
}

func (s *classService) Create(ctx context.Context, payload dto.ClassCreateRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	// New classes sort after every existing one.
	maxOrder, err := s.classes.MaxDisplayOrder(ctx)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		Name:         payload.Name,
		Description:  payload.Description,
		DisplayOrder: maxOrder + 1,
	}

	if err := s.classes.Create(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	s.logger.Info().Uint("class_id", class.ID).Msg("class created")

	return dto.NewClassResponse(class), nil
}

func (s *classService) Update(ctx context.Context, id uint, payload dto.ClassUpdateRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}

	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassResponse{}, ErrClassNotFound
		}
		return dto.ClassResponse{}, err
	}

	class.Name = payload.Name
	if payload.Description != nil {
		class.Description = *payload.Description
	}

	if err := s.classes.Update(ctx, &class); err != nil {
		return dto.ClassResponse{}, err
	}

	return dto.NewClassResponse(class), nil
}

// Delete removes a class and detaches its members. Their submission
// history is untouched; the class's distribution rules simply stop
// resolving to anyone.
func (s *classService) Delete(ctx context.Context, id uint) error {
	if _, err := s.classes.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Uint("class_id", id).Msg("class deleted, members detached")

	return nil
}

func (s *classService) Reorder(ctx context.Context, payload dto.ClassReorderRequest) ([]dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	existing, err := s.classes.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(payload.Order) != len(existing) {
		return nil, fmt.Errorf("order must list every class exactly once, got %d of %d", len(payload.Order), len(existing))
	}

	known := make(map[uint]struct{}, len(existing))
	for _, class := range existing {
		known[class.ID] = struct{}{}
	}

	seen := make(map[uint]struct{}, len(payload.Order))
	for _, id := range payload.Order {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("unknown class id %d in order", id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate class id %d in order", id)
		}
		seen[id] = struct{}{}
	}

	if err := s.classes.Reorder(ctx, payload.Order); err != nil {
		return nil, err
	}

	return s.List(ctx)
}

func (s *classService) ListMembers(ctx context.Context, id uint) ([]dto.UserResponse, error) {
	if _, err := s.classes.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}

	members, err := s.users.List(ctx, repository.UserFilter{ClassID: &id})
	if err != nil {
		return nil, err
	}

	return dto.NewUserResponseSlice(members), nil
}

func (s *classService) AddMembers(ctx context.Context, id uint, payload dto.ClassMembersRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	if _, err := s.classes.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	if err := s.users.AssignClass(ctx, id, payload.UserIDs); err != nil {
		return err
	}

	s.logger.Info().Uint("class_id", id).Int("count", len(payload.UserIDs)).Msg("members added to class")

	return nil
}

func (s *classService) RemoveMembers(ctx context.Context, id uint, payload dto.ClassMembersRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	if _, err := s.classes.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassNotFound
		}
		return err
	}

	if err := s.users.RemoveFromClass(ctx, id, payload.UserIDs); err != nil {
		return err
	}

	s.logger.Info().Uint("class_id", id).Int("count", len(payload.UserIDs)).Msg("members removed from class")

	return nil
}
