package dto

import (
	"time"

	"github.com/mizuki-lab/shukudai-api/internal/models"
)

// UserUpdateRequest carries staff edits to a user record.
type UserUpdateRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Role    *string `json:"role" validate:"omitempty,oneof=student teacher admin"`
	ClassID *uint   `json:"class_id" validate:"omitempty,gt=0"`
}

// UserResponse is returned to API clients when viewing users.
type UserResponse struct {
	ID        uint        `json:"id"`
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	ClassID   *uint       `json:"class_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserResponse converts a User model into a DTO.
func NewUserResponse(model models.User) UserResponse {
	return UserResponse{
		ID:        model.ID,
		Username:  model.Username,
		Name:      model.Name,
		Role:      model.Role,
		ClassID:   model.ClassID,
		CreatedAt: model.CreatedAt,
	}
}

// NewUserResponseSlice converts user models into DTOs.
func NewUserResponseSlice(items []models.User) []UserResponse {
	responses := make([]UserResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewUserResponse(item))
	}

	return responses
}
