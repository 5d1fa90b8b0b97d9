package models

// Material is a course/topic container owning lessons.
type Material struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Title       string   `gorm:"size:100;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Lessons     []Lesson `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"lessons,omitempty"`
}

// Lesson is a unit within a material owning assignments.
type Lesson struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	MaterialID  uint         `gorm:"not null;index" json:"material_id"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Assignments []Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignments,omitempty"`
}
