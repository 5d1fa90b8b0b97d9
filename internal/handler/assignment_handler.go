package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/service"
	"github.com/mizuki-lab/shukudai-api/internal/utils"
)

// AssignmentHandler manages assignment, target and test case endpoints.
type AssignmentHandler struct {
	service service.AssignmentService
	targets service.TargetService
	logger  zerolog.Logger
}

// NewAssignmentHandler builds an assignment handler instance.
func NewAssignmentHandler(service service.AssignmentService, targets service.TargetService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		targets: targets,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the routes. The authed group is open to every
// authenticated user; the staff group carries the role guard.
func (h *AssignmentHandler) Register(authed, staff fiber.Router) {
	authed.Get("/mine", h.mine)
	authed.Get("/:id", h.get)

	staff.Get("", h.list)
	staff.Post("", h.create)
	staff.Put("/:id", h.update)
	staff.Delete("/:id", h.delete)
	staff.Get("/:id/targets", h.listTargets)
	staff.Put("/:id/targets", h.replaceTargets)
	staff.Delete("/:id/targets", h.unassignTarget)
	staff.Get("/:id/audience", h.audience)
	staff.Get("/:id/test-cases", h.listTestCases)
	staff.Post("/:id/test-cases", h.createTestCase)
	staff.Put("/:id/test-cases", h.replaceTestCases)
	staff.Put("/test-cases/:id", h.updateTestCase)
	staff.Delete("/test-cases/:id", h.deleteTestCase)
}

// mine lists the assignments currently distributed to the caller.
func (h *AssignmentHandler) mine(c *fiber.Ctx) error {
	assignments, err := h.targets.ResolveAssignments(c.Context(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	assignments, err := h.service.List(c.Context(), true)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	staff := isStaff(c)
	if !staff {
		assigned, err := h.targets.IsAssigned(c.Context(), userIDFromContext(c), id)
		if err != nil {
			return h.handleError(c, err)
		}
		if !assigned {
			return utils.SendError(c, fiber.StatusForbidden, "assignment is not assigned to you")
		}
	}

	assignment, err := h.service.Get(c.Context(), id, staff)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	payload, err := parseAssignmentForm(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	// Attachment is optional.
	attachment, err := c.FormFile("file")
	if err != nil {
		attachment = nil
	}

	assignment, err := h.service.Create(c.Context(), payload, attachment)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "assignment created", assignment)
}

func parseAssignmentForm(c *fiber.Ctx) (dto.AssignmentCreateRequest, error) {
	lessonID, err := parseFormUint(c, "lesson_id")
	if err != nil {
		return dto.AssignmentCreateRequest{}, err
	}

	correctIndex, err := parseFormInt(c, "correct_answer_index")
	if err != nil {
		return dto.AssignmentCreateRequest{}, err
	}

	payload := dto.AssignmentCreateRequest{
		LessonID:           lessonID,
		Title:              c.FormValue("title"),
		Description:        c.FormValue("description"),
		QuestionText:       c.FormValue("question_text"),
		InputExample:       c.FormValue("input_example"),
		ExpectedOutput:     c.FormValue("expected_output"),
		ProblemType:        c.FormValue("problem_type"),
		ExecMode:           c.FormValue("exec_mode"),
		EntryFunction:      c.FormValue("entry_function"),
		CorrectChoiceIndex: correctIndex,
		TargetType:         c.FormValue("target_type"),
	}

	if raw := strings.TrimSpace(c.FormValue("choices")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Choices); err != nil {
			return dto.AssignmentCreateRequest{}, errors.New("invalid choices")
		}
	}

	if raw := strings.TrimSpace(c.FormValue("target_ids")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.TargetIDs); err != nil {
			return dto.AssignmentCreateRequest{}, errors.New("invalid target_ids")
		}
	}

	return payload, nil
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Update(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment updated", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment deleted", nil)
}

func (h *AssignmentHandler) listTargets(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	targets, err := h.targets.ListTargets(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "targets retrieved", targets)
}

func (h *AssignmentHandler) replaceTargets(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TargetReplaceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	targets, err := h.targets.Replace(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "targets replaced", targets)
}

func (h *AssignmentHandler) unassignTarget(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	targetType := models.TargetType(c.Query("target_type"))
	if targetType != models.TargetTypeAll && targetType != models.TargetTypeClass && targetType != models.TargetTypeUser {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid target_type")
	}

	var targetID uint
	if targetType != models.TargetTypeAll {
		parsed, err := parseQueryUint(c, "target_id")
		if err != nil || parsed == nil {
			return utils.SendError(c, fiber.StatusBadRequest, "target_id is required")
		}
		targetID = *parsed
	}

	if err := h.targets.Unassign(c.Context(), id, targetType, targetID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "target removed", nil)
}

// audience shows the live set of students an assignment reaches.
func (h *AssignmentHandler) audience(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	users, err := h.targets.ResolveUsers(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "audience resolved", users)
}

func (h *AssignmentHandler) listTestCases(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	cases, err := h.service.ListTestCases(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test cases retrieved", cases)
}

func (h *AssignmentHandler) createTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var body struct {
		Input          string         `json:"input"`
		ExpectedOutput string         `json:"expected_output"`
		Args           datatypes.JSON `json:"args"`
		Comment        string         `json:"comment"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	payload := dto.TestCaseCreateRequest{
		AssignmentID:   id,
		Input:          body.Input,
		ExpectedOutput: body.ExpectedOutput,
		Args:           body.Args,
		Comment:        body.Comment,
	}

	testCase, err := h.service.CreateTestCase(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "test case created", testCase)
}

func (h *AssignmentHandler) replaceTestCases(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TestCaseReplaceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	cases, err := h.service.ReplaceTestCases(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test cases replaced", cases)
}

func (h *AssignmentHandler) updateTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TestCaseUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	testCase, err := h.service.UpdateTestCase(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test case updated", testCase)
}

func (h *AssignmentHandler) deleteTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteTestCase(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test case deleted", nil)
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrLessonNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "lesson not found")
	case errors.Is(err, service.ErrTestCaseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "test case not found")
	case errors.Is(err, service.ErrTargetNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "target not found")
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrClassNotFound):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidChoices):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
