package models

import "time"

// Role identifies what an actor is allowed to do. It is the single
// canonical role representation; nothing downstream infers roles from
// other fields.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role may grade submissions and manage content.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// User is an actor: a student, teacher or admin. A student belongs to at
// most one class; staff never carry a class.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Name      string    `gorm:"size:255" json:"name"`
	Role      Role      `gorm:"size:20;not null;default:student" json:"role"`
	ClassID   *uint     `gorm:"index" json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Class is a named group of students used as a distribution target.
type Class struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	DisplayOrder int       `gorm:"not null;default:0" json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
