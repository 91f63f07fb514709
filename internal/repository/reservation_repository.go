package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-admin-api/internal/models"
)

// ReservationRepository handles persistence for resource reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository instantiates a reservation repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationColumns = `r.id, r.reserved_by, r.resource_id, r.start_time, r.end_time, r.purpose, r.description, r.course, r.batch, r.status, r.created_at, r.updated_at`

// GetByID returns a reservation with requester and resource names joined.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS requester_name, res.name AS resource_name
FROM reservations r
JOIN users u ON u.id = r.reserved_by
JOIN resources res ON res.id = r.resource_id
WHERE r.id = $1`, reservationColumns)
	var reservation models.Reservation
	if err := r.db.GetContext(ctx, &reservation, query, id); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// List returns reservations matching the filter with a total count.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	base := `FROM reservations r JOIN users u ON u.id = r.reserved_by JOIN resources res ON res.id = r.resource_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("r.resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.ReservedBy != "" {
		conditions = append(conditions, fmt.Sprintf("r.reserved_by = $%d", len(args)+1))
		args = append(args, filter.ReservedBy)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("r.end_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("r.start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, u.full_name AS requester_name, res.name AS resource_name
%s ORDER BY r.start_time DESC LIMIT %d OFFSET %d`, reservationColumns, base, size, offset)
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	return reservations, total, nil
}

// FindApprovedOverlap returns the first approved reservation on the resource
// whose half-open interval overlaps [start, end), or nil when the slot is free.
func (r *ReservationRepository) FindApprovedOverlap(ctx context.Context, resourceID string, start, end time.Time) (*models.Reservation, error) {
	const query = `SELECT id, reserved_by, resource_id, start_time, end_time, purpose, description, course, batch, status, created_at, updated_at
FROM reservations
WHERE resource_id = $1 AND status = $2 AND start_time < $3 AND end_time > $4
ORDER BY start_time
LIMIT 1`
	var reservation models.Reservation
	err := r.db.GetContext(ctx, &reservation, query, resourceID, models.ReservationApproved, end, start)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find approved overlap: %w", err)
	}
	return &reservation, nil
}

// Create inserts a new reservation.
func (r *ReservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = now
	}
	reservation.UpdatedAt = now
	const query = `INSERT INTO reservations (id, reserved_by, resource_id, start_time, end_time, purpose, description, course, batch, status, created_at, updated_at)
VALUES (:id, :reserved_by, :resource_id, :start_time, :end_time, :purpose, :description, :course, :batch, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reservation); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// UpdateStatus sets a reservation status.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) error {
	const query = `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return nil
}

// Approve transitions a pending reservation to approved after re-checking
// for conflicting approvals inside one transaction. The resource row is
// locked first so two concurrent approvals serialize on it; the overlap
// check and the status update are one atomic unit. Returns the conflicting
// reservation when the slot is already taken.
func (r *ReservationRepository) Approve(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var resourceID string
	if err = tx.GetContext(ctx, &resourceID, `SELECT id FROM resources WHERE id = $1 FOR UPDATE`, reservation.ResourceID); err != nil {
		return nil, fmt.Errorf("lock resource: %w", err)
	}

	const overlapQuery = `SELECT id, reserved_by, resource_id, start_time, end_time, purpose, description, course, batch, status, created_at, updated_at
FROM reservations
WHERE resource_id = $1 AND status = $2 AND id <> $3 AND start_time < $4 AND end_time > $5
ORDER BY start_time
LIMIT 1`
	var conflict models.Reservation
	err = tx.GetContext(ctx, &conflict, overlapQuery, reservation.ResourceID, models.ReservationApproved, reservation.ID, reservation.EndTime, reservation.StartTime)
	if err == nil {
		return &conflict, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("approve overlap check: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`,
		reservation.ID, models.ReservationApproved, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("approve reservation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve tx: %w", err)
	}
	return nil, nil
}

// Delete removes a reservation permanently.
func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// CountByStatus returns how many reservations currently hold a status.
func (r *ReservationRepository) CountByStatus(ctx context.Context, status models.ReservationStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reservations WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("count reservations by status: %w", err)
	}
	return total, nil
}

// CountByUser returns how many reservations a user has submitted.
func (r *ReservationRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reservations WHERE reserved_by = $1`, userID); err != nil {
		return 0, fmt.Errorf("count reservations by user: %w", err)
	}
	return total, nil
}
