package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/authz"
	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type resourceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context, category *models.ResourceCategory) ([]models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
	Update(ctx context.Context, resource *models.Resource) error
	Delete(ctx context.Context, id string) error
}

type resourceActorRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ResourceRequest is the payload for creating or updating a resource.
type ResourceRequest struct {
	Name     string                  `json:"name" validate:"required,max=255"`
	Category models.ResourceCategory `json:"category" validate:"required,oneof=classroom lab equipment other"`
	Capacity *int                    `json:"capacity,omitempty" validate:"omitempty,min=1"`
}

// ResourceService manages the reservable resource catalogue.
type ResourceService struct {
	repo      resourceRepository
	users     resourceActorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResourceService constructs the service.
func NewResourceService(repo resourceRepository, users resourceActorRepository, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns resources, optionally filtered by category.
func (s *ResourceService) List(ctx context.Context, category *models.ResourceCategory) ([]models.Resource, error) {
	if category != nil && !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resource category")
	}
	resources, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

// Get returns a resource by ID.
func (s *ResourceService) Get(ctx context.Context, id string) (*models.Resource, error) {
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	return resource, nil
}

// Create adds a resource to the catalogue. Staff only.
func (s *ResourceService) Create(ctx context.Context, actorID string, req ResourceRequest) (*models.Resource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}

	resource := &models.Resource{
		Name:     req.Name,
		Category: req.Category,
		Capacity: req.Capacity,
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
	}
	return resource, nil
}

// Update modifies a resource. Staff only.
func (s *ResourceService) Update(ctx context.Context, actorID, id string, req ResourceRequest) (*models.Resource, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resource payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}

	resource, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resource.Name = req.Name
	resource.Category = req.Category
	resource.Capacity = req.Capacity

	if err := s.repo.Update(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resource")
	}
	return resource, nil
}

// Delete removes a resource. Staff only.
func (s *ResourceService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}
	return nil
}

func (s *ResourceService) requireManage(ctx context.Context, actorID string) error {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !authz.Can(actor.Role, authz.ResourceManage, authz.Subject{ActorID: actor.ID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage resources")
	}
	return nil
}
