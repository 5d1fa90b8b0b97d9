package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mizuki-lab/shukudai-api/internal/dto"
	"github.com/mizuki-lab/shukudai-api/internal/service"
	"github.com/mizuki-lab/shukudai-api/internal/utils"
)

// CatalogHandler manages material and lesson endpoints.
type CatalogHandler struct {
	service service.CatalogService
	logger  zerolog.Logger
}

// NewCatalogHandler builds a catalog handler instance.
func NewCatalogHandler(service service.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger.With().Str("component", "catalog_handler").Logger(),
	}
}

// RegisterMaterials attaches the material routes. The write routes are
// expected to sit behind the staff guard.
func (h *CatalogHandler) RegisterMaterials(read, write fiber.Router) {
	read.Get("", h.listMaterials)
	read.Get("/:id", h.getMaterial)
	write.Post("", h.createMaterial)
	write.Put("/:id", h.updateMaterial)
	write.Delete("/:id", h.deleteMaterial)
}

// RegisterLessons attaches the lesson routes.
func (h *CatalogHandler) RegisterLessons(read, write fiber.Router) {
	read.Get("", h.listLessons)
	read.Get("/:id", h.getLesson)
	write.Post("", h.createLesson)
	write.Put("/:id", h.updateLesson)
	write.Delete("/:id", h.deleteLesson)
}

func (h *CatalogHandler) listMaterials(c *fiber.Ctx) error {
	materials, err := h.service.ListMaterials(c.Context())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "materials retrieved", materials)
}

func (h *CatalogHandler) getMaterial(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	material, err := h.service.GetMaterial(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "material retrieved", material)
}

func (h *CatalogHandler) createMaterial(c *fiber.Ctx) error {
	var payload dto.MaterialCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	material, err := h.service.CreateMaterial(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "material created", material)
}

func (h *CatalogHandler) updateMaterial(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MaterialUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	material, err := h.service.UpdateMaterial(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "material updated", material)
}

func (h *CatalogHandler) deleteMaterial(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteMaterial(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "material deleted", nil)
}

func (h *CatalogHandler) listLessons(c *fiber.Ctx) error {
	materialID, err := parseQueryUint(c, "material_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	lessons, err := h.service.ListLessons(c.Context(), materialID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lessons retrieved", lessons)
}

func (h *CatalogHandler) getLesson(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	lesson, err := h.service.GetLesson(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lesson retrieved", lesson)
}

func (h *CatalogHandler) createLesson(c *fiber.Ctx) error {
	var payload dto.LessonCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	lesson, err := h.service.CreateLesson(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "lesson created", lesson)
}

func (h *CatalogHandler) updateLesson(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.LessonUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	lesson, err := h.service.UpdateLesson(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lesson updated", lesson)
}

func (h *CatalogHandler) deleteLesson(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteLesson(c.Context(), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "lesson deleted", nil)
}

func (h *CatalogHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrMaterialNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "material not found")
	case errors.Is(err, service.ErrLessonNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "lesson not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
