package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-admin-api/internal/models"
)

// EventRepository provides persistence for events and their categories.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateCategory inserts an event category.
func (r *EventRepository) CreateCategory(ctx context.Context, category *models.EventCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO event_categories (id, name, created_at) VALUES (:id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create event category: %w", err)
	}
	return nil
}

// ListCategories returns all event categories.
func (r *EventRepository) ListCategories(ctx context.Context) ([]models.EventCategory, error) {
	var categories []models.EventCategory
	if err := r.db.SelectContext(ctx, &categories, `SELECT id, name, created_at FROM event_categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list event categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes a category; its events cascade.
func (r *EventRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM event_categories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event category: %w", err)
	}
	return nil
}

const eventColumns = `e.id, e.category_id, e.title, e.date, e.venue, e.target_audience, e.description, e.registration_link, e.image_path, e.created_by, e.created_at, e.updated_at, ec.name AS category_name`

// GetByID returns an event by identifier.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events e JOIN event_categories ec ON ec.id = e.category_id WHERE e.id = $1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListUpcoming returns events on or after the reference time, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, ref time.Time) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events e JOIN event_categories ec ON ec.id = e.category_id WHERE e.date >= $1 ORDER BY e.date`, eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, ref); err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return events, nil
}

// ListPast returns events before the reference time, most recent first.
func (r *EventRepository) ListPast(ctx context.Context, ref time.Time) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events e JOIN event_categories ec ON ec.id = e.category_id WHERE e.date < $1 ORDER BY e.date DESC`, eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, ref); err != nil {
		return nil, fmt.Errorf("list past events: %w", err)
	}
	return events, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	const query = `INSERT INTO events (id, category_id, title, date, venue, target_audience, description, registration_link, image_path, created_by, created_at, updated_at)
VALUES (:id, :category_id, :title, :date, :venue, :target_audience, :description, :registration_link, :image_path, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update modifies an existing event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET category_id = :category_id, title = :title, date = :date, venue = :venue, target_audience = :target_audience,
description = :description, registration_link = :registration_link, image_path = :image_path, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// CountUpcoming returns how many events are scheduled from ref onward.
func (r *EventRepository) CountUpcoming(ctx context.Context, ref time.Time) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM events WHERE date >= $1`, ref); err != nil {
		return 0, fmt.Errorf("count upcoming events: %w", err)
	}
	return total, nil
}

// ListRecipientIDs returns ids of active users other than the creator,
// used for event notification fanout.
func (r *EventRepository) ListRecipientIDs(ctx context.Context, creatorID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE active = TRUE AND id <> $1`, creatorID); err != nil {
		return nil, fmt.Errorf("list event recipients: %w", err)
	}
	return ids, nil
}
