package models

import "time"

// EventCategory groups events for filtering on the dashboard.
type EventCategory struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event is an institution-wide announcement with a scheduled date.
type Event struct {
	ID               string    `db:"id" json:"id"`
	CategoryID       string    `db:"category_id" json:"category_id"`
	Title            string    `db:"title" json:"title"`
	Date             time.Time `db:"date" json:"date"`
	Venue            string    `db:"venue" json:"venue"`
	TargetAudience   string    `db:"target_audience" json:"target_audience"`
	Description      string    `db:"description" json:"description"`
	RegistrationLink *string   `db:"registration_link" json:"registration_link,omitempty"`
	ImagePath        *string   `db:"image_path" json:"image_path,omitempty"`
	CreatedBy        string    `db:"created_by" json:"created_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	CategoryName *string `db:"category_name" json:"category_name,omitempty"`
}
