package models

import "time"

// ResourceCategory classifies reservable resources.
type ResourceCategory string

const (
	ResourceClassroom ResourceCategory = "classroom"
	ResourceLab       ResourceCategory = "lab"
	ResourceEquipment ResourceCategory = "equipment"
	ResourceOther     ResourceCategory = "other"
)

// Valid reports whether the category is a known one.
func (c ResourceCategory) Valid() bool {
	switch c {
	case ResourceClassroom, ResourceLab, ResourceEquipment, ResourceOther:
		return true
	}
	return false
}

// Resource is an institution-owned asset that can be reserved.
type Resource struct {
	ID        string           `db:"id" json:"id"`
	Name      string           `db:"name" json:"name"`
	Category  ResourceCategory `db:"category" json:"category"`
	Capacity  *int             `db:"capacity" json:"capacity,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}
