package models

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationApproved  ReservationStatus = "approved"
	ReservationRejected  ReservationStatus = "rejected"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationRejected || s == ReservationCancelled
}

// ReservationDecision is the staff verdict on a pending reservation.
type ReservationDecision string

const (
	DecisionApprove ReservationDecision = "approve"
	DecisionReject  ReservationDecision = "reject"
)

// Reservation is a request to use a resource over a half-open time
// interval [StartTime, EndTime).
type Reservation struct {
	ID          string            `db:"id" json:"id"`
	ReservedBy  string            `db:"reserved_by" json:"reserved_by"`
	ResourceID  string            `db:"resource_id" json:"resource_id"`
	StartTime   time.Time         `db:"start_time" json:"start_time"`
	EndTime     time.Time         `db:"end_time" json:"end_time"`
	Purpose     string            `db:"purpose" json:"purpose"`
	Description string            `db:"description" json:"description"`
	Course      *string           `db:"course" json:"course,omitempty"`
	Batch       *string           `db:"batch" json:"batch,omitempty"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`

	RequesterName *string `db:"requester_name" json:"requester_name,omitempty"`
	ResourceName  *string `db:"resource_name" json:"resource_name,omitempty"`
}

// Overlaps applies the half-open interval overlap test against another
// reservation on the same resource. Back-to-back bookings do not overlap.
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	ResourceID string
	ReservedBy string
	Status     *ReservationStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
