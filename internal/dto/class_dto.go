package dto

import (
	"time"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// ClassCreateRequest describes the payload for creating a class.
type ClassCreateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

// ClassUpdateRequest renames a class or changes its description.
type ClassUpdateRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
}

// ClassReorderRequest rewrites the display order of all classes.
type ClassReorderRequest struct {
	Order []uint `json:"order" validate:"required,min=1,dive,gt=0"`
}

// ClassMembersRequest adds or removes students from a class.
type ClassMembersRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

// ClassResponse is returned to API clients when viewing classes.
type ClassResponse struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClassRollupResponse is the per-class aggregate used on staff dashboards.
type ClassRollupResponse struct {
	ClassID     uint    `json:"class_id"`
	Name        string  `json:"name"`
	Members     int     `json:"members"`
	Submissions int     `json:"submissions"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
}

// UserAccuracyResponse is a per-user submissions/accuracy row.
type UserAccuracyResponse struct {
	UserID      uint    `json:"user_id"`
	Username    string  `json:"username"`
	Submissions int     `json:"submissions"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
}

// NewClassResponse converts a Class model into a DTO.
func NewClassResponse(model models.Class) ClassResponse {
	return ClassResponse{
		ID:           model.ID,
		Name:         model.Name,
		Description:  model.Description,
		DisplayOrder: model.DisplayOrder,
		CreatedAt:    model.CreatedAt,
	}
}

// NewClassResponseSlice converts class models into DTOs.
func NewClassResponseSlice(items []models.Class) []ClassResponse {
	responses := make([]ClassResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewClassResponse(item))
	}

	return responses
}
