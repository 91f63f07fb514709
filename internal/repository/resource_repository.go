package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-admin-api/internal/models"
)

// ResourceRepository handles persistence for reservable resources.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository instantiates a resource repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// GetByID returns a resource by identifier.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, name, category, capacity, created_at, updated_at FROM resources WHERE id = $1`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// List returns resources, optionally filtered by category.
func (r *ResourceRepository) List(ctx context.Context, category *models.ResourceCategory) ([]models.Resource, error) {
	base := `SELECT id, name, category, capacity, created_at, updated_at FROM resources`
	var conditions []string
	var args []interface{}
	if category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, *category)
	}
	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}
	base += " ORDER BY name"

	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, base, args...); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// Create inserts a new resource.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now
	const query = `INSERT INTO resources (id, name, category, capacity, created_at, updated_at) VALUES (:id, :name, :category, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// Update modifies an existing resource.
func (r *ResourceRepository) Update(ctx context.Context, resource *models.Resource) error {
	resource.UpdatedAt = time.Now().UTC()
	const query = `UPDATE resources SET name = :name, category = :category, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	return nil
}

// Delete removes a resource; reservations cascade.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}

// Count returns the total number of resources.
func (r *ResourceRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM resources`); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return total, nil
}
