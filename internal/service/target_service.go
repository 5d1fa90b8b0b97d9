package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
)

// ErrTargetNotFound indicates a distribution rule could not be found.
var ErrTargetNotFound = errors.New("target not found")

// TargetService owns assignment distribution: which students see which
// assignments. Resolution is always computed live against current class
// membership, never cached or materialised.
type TargetService interface {
	ListTargets(ctx context.Context, assignmentID uint) ([]dto.TargetResponse, error)
	// ResolveUsers returns the distinct set of students an assignment
	// currently reaches.
	ResolveUsers(ctx context.Context, assignmentID uint) ([]dto.UserResponse, error)
	// ResolveAssignments returns the assignments currently visible to a
	// user, newest first.
	ResolveAssignments(ctx context.Context, userID uint) ([]dto.AssignmentResponse, error)
	// Replace swaps an assignment's full target set atomically.
	Replace(ctx context.Context, assignmentID uint, payload dto.TargetReplaceRequest) ([]dto.TargetResponse, error)
	// Unassign removes a single distribution rule.
	Unassign(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) error
	// IsAssigned reports whether the assignment currently reaches the user.
	IsAssigned(ctx context.Context, userID, assignmentID uint) (bool, error)
}

type targetService struct {
	targets     repository.TargetRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	classes     repository.ClassRepository
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewTargetService constructs a TargetService instance.
func NewTargetService(targetRepo repository.TargetRepository, assignmentRepo repository.AssignmentRepository, userRepo repository.UserRepository, classRepo repository.ClassRepository, validate *validator.Validate, logger zerolog.Logger) TargetService {
	return &targetService{
		targets:     targetRepo,
		assignments: assignmentRepo,
		users:       userRepo,
		classes:     classRepo,
		validator:   validate,
		logger:      logger.With().Str("component", "target_service").Logger(),
		tracer:      otel.Tracer("github.com/mizuki-lab/shukudai-api/internal/service/target"),
	}
}

func (s *targetService) ListTargets(ctx context.Context, assignmentID uint) ([]dto.TargetResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	targets, err := s.targets.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.TargetResponse, 0, len(targets))
	for _, target := range targets {
		response := dto.NewTargetResponse(target)
		response.TargetName = s.targetName(ctx, target)
		responses = append(responses, response)
	}

	return responses, nil
}

func (s *targetService) targetName(ctx context.Context, target models.Target) string {
	if target.TargetID == nil {
		return ""
	}

	switch target.TargetType {
	case models.TargetTypeUser:
		if user, err := s.users.GetByID(ctx, *target.TargetID); err == nil {
			return user.Username
		}
	case models.TargetTypeClass:
		if class, err := s.classes.GetByID(ctx, *target.TargetID); err == nil {
			return class.Name
		}
	}

	return ""
}

func (s *targetService) ResolveUsers(ctx context.Context, assignmentID uint) ([]dto.UserResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "targets.resolve_users", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	if _, err := s.assignments.GetByID(spanCtx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	targets, err := s.targets.ListByAssignment(spanCtx, assignmentID)
	if err != nil {
		return nil, err
	}

	// Zero targets means the assignment reaches nobody.
	if len(targets) == 0 {
		return []dto.UserResponse{}, nil
	}

	studentRole := models.RoleStudent

	for _, target := range targets {
		if target.TargetType == models.TargetTypeAll {
			students, err := s.users.List(spanCtx, repository.UserFilter{Role: &studentRole})
			if err != nil {
				return nil, err
			}
			span.SetAttributes(attribute.Int("targets.resolved", len(students)))
			return dto.NewUserResponseSlice(students), nil
		}
	}

	var (
		userIDs  []uint
		classIDs []uint
	)
	for _, target := range targets {
		if target.TargetID == nil {
			continue
		}
		switch target.TargetType {
		case models.TargetTypeUser:
			userIDs = append(userIDs, *target.TargetID)
		case models.TargetTypeClass:
			classIDs = append(classIDs, *target.TargetID)
		}
	}

	// Union of direct user targets and live class membership, deduped
	// by user id.
	seen := make(map[uint]struct{})
	var resolved []models.User

	for _, classID := range classIDs {
		id := classID
		members, err := s.users.List(spanCtx, repository.UserFilter{Role: &studentRole, ClassID: &id})
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if _, dup := seen[member.ID]; dup {
				continue
			}
			seen[member.ID] = struct{}{}
			resolved = append(resolved, member)
		}
	}

	if len(userIDs) > 0 {
		direct, err := s.users.List(spanCtx, repository.UserFilter{Role: &studentRole, IDs: userIDs})
		if err != nil {
			return nil, err
		}
		for _, user := range direct {
			if _, dup := seen[user.ID]; dup {
				continue
			}
			seen[user.ID] = struct{}{}
			resolved = append(resolved, user)
		}
	}

	span.SetAttributes(attribute.Int("targets.resolved", len(resolved)))

	return dto.NewUserResponseSlice(resolved), nil
}

func (s *targetService) ResolveAssignments(ctx context.Context, userID uint) ([]dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "targets.resolve_assignments", trace.WithAttributes(
		attribute.Int("user.id", int(userID)),
	))
	defer span.End()

	if _, err := s.users.GetByID(spanCtx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	assignments, err := s.targets.ResolveAssignments(spanCtx, userID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("assignments.visible", len(assignments)))

	return dto.NewAssignmentResponseSlice(assignments, false), nil
}

func (s *targetService) Replace(ctx context.Context, assignmentID uint, payload dto.TargetReplaceRequest) ([]dto.TargetResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	spanCtx, span := s.tracer.Start(ctx, "targets.replace", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
		attribute.String("target.type", payload.TargetType),
	))
	defer span.End()

	if _, err := s.assignments.GetByID(spanCtx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	targets, err := s.buildTargets(spanCtx, assignmentID, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.targets.Replace(spanCtx, assignmentID, targets); err != nil {
		return nil, err
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Str("target_type", payload.TargetType).
		Int("targets", len(targets)).
		Msg("assignment targets replaced")

	return s.ListTargets(spanCtx, assignmentID)
}

// buildTargets maps the request onto concrete rows. The "all" type is
// exclusive: it always produces exactly one row with no target id.
func (s *targetService) buildTargets(ctx context.Context, assignmentID uint, payload dto.TargetReplaceRequest) ([]models.Target, error) {
	switch payload.TargetType {
	case "none":
		return nil, nil

	case "all":
		return []models.Target{{AssignmentID: assignmentID, TargetType: models.TargetTypeAll}}, nil

	case "users":
		if len(payload.TargetIDs) == 0 {
			return nil, fmt.Errorf("target_ids is required for user targets")
		}
		targets := make([]models.Target, 0, len(payload.TargetIDs))
		for _, id := range dedupe(payload.TargetIDs) {
			userID := id
			user, err := s.users.GetByID(ctx, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
				}
				return nil, err
			}
			if user.Role != models.RoleStudent {
				return nil, fmt.Errorf("user %d is not a student", userID)
			}
			targets = append(targets, models.Target{
				AssignmentID: assignmentID,
				TargetType:   models.TargetTypeUser,
				TargetID:     &userID,
			})
		}
		return targets, nil

	case "classes":
		if len(payload.TargetIDs) == 0 {
			return nil, fmt.Errorf("target_ids is required for class targets")
		}
		targets := make([]models.Target, 0, len(payload.TargetIDs))
		for _, id := range dedupe(payload.TargetIDs) {
			classID := id
			if _, err := s.classes.GetByID(ctx, classID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("%w: class %d", ErrClassNotFound, classID)
				}
				return nil, err
			}
			targets = append(targets, models.Target{
				AssignmentID: assignmentID,
				TargetType:   models.TargetTypeClass,
				TargetID:     &classID,
			})
		}
		return targets, nil
	}

	return nil, fmt.Errorf("unknown target type %q", payload.TargetType)
}

func (s *targetService) Unassign(ctx context.Context, assignmentID uint, targetType models.TargetType, targetID uint) error {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	affected, err := s.targets.Delete(ctx, assignmentID, targetType, targetID)
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrTargetNotFound
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Str("target_type", string(targetType)).
		Uint("target_id", targetID).
		Msg("assignment target removed")

	return nil
}

func (s *targetService) IsAssigned(ctx context.Context, userID, assignmentID uint) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}

	// Staff are never implicit targets, even of an all-type rule.
	if user.Role != models.RoleStudent {
		return false, nil
	}

	targets, err := s.targets.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return false, err
	}

	for _, target := range targets {
		switch target.TargetType {
		case models.TargetTypeAll:
			return true, nil
		case models.TargetTypeUser:
			if target.TargetID != nil && *target.TargetID == userID {
				return true, nil
			}
		case models.TargetTypeClass:
			if target.TargetID != nil && user.ClassID != nil && *target.TargetID == *user.ClassID {
				return true, nil
			}
		}
	}

	return false, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
