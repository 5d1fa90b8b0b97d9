package dto

import "github.com/mizuki-lab/shukudai-api/internal/models"

// MaterialCreateRequest describes the payload for creating a material.
type MaterialCreateRequest struct {
	Title       string `json:"title" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty"`
}

// MaterialUpdateRequest carries partial material edits.
type MaterialUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description"`
}

// LessonCreateRequest describes the payload for creating a lesson.
type LessonCreateRequest struct {
	MaterialID  uint   `json:"material_id" validate:"required,gt=0"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

// LessonUpdateRequest carries partial lesson edits.
type LessonUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
}

// MaterialResponse is returned to API clients when viewing materials.
type MaterialResponse struct {
	ID          uint             `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Lessons     []LessonResponse `json:"lessons,omitempty"`
}

// LessonResponse is returned to API clients when viewing lessons.
type LessonResponse struct {
	ID          uint   `json:"id"`
	MaterialID  uint   `json:"material_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NewMaterialResponse converts a Material model into a DTO.
func NewMaterialResponse(model models.Material) MaterialResponse {
	response := MaterialResponse{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
	}

	for _, lesson := range model.Lessons {
		response.Lessons = append(response.Lessons, NewLessonResponse(lesson))
	}

	return response
}

// NewLessonResponse converts a Lesson model into a DTO.
func NewLessonResponse(model models.Lesson) LessonResponse {
	return LessonResponse{
		ID:          model.ID,
		MaterialID:  model.MaterialID,
		Title:       model.Title,
		Description: model.Description,
	}
}

// NewMaterialResponseSlice converts material models into DTOs.
func NewMaterialResponseSlice(items []models.Material) []MaterialResponse {
	responses := make([]MaterialResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewMaterialResponse(item))
	}

	return responses
}

// NewLessonResponseSlice converts lesson models into DTOs.
func NewLessonResponseSlice(items []models.Lesson) []LessonResponse {
	responses := make([]LessonResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewLessonResponse(item))
	}

	return responses
}
