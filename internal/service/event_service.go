package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/authz"
	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type eventRepository interface {
	CreateCategory(ctx context.Context, category *models.EventCategory) error
	ListCategories(ctx context.Context) ([]models.EventCategory, error)
	DeleteCategory(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListUpcoming(ctx context.Context, ref time.Time) ([]models.Event, error)
	ListPast(ctx context.Context, ref time.Time) ([]models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

type eventActorRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type eventImageStore interface {
	Save(prefix, originalName string, r io.Reader) (string, error)
	Delete(rel string) error
}

type eventNotifier interface {
	EventCreated(eventID, creatorID string)
}

// EventRequest is the payload for creating or updating an event.
type EventRequest struct {
	CategoryID       string    `json:"category_id" validate:"required"`
	Title            string    `json:"title" validate:"required,max=255"`
	Date             time.Time `json:"date" validate:"required"`
	Venue            string    `json:"venue" validate:"required,max=255"`
	TargetAudience   string    `json:"target_audience" validate:"required,max=255"`
	Description      string    `json:"description" validate:"required"`
	RegistrationLink *string   `json:"registration_link,omitempty" validate:"omitempty,url"`
}

// EventCategoryRequest is the payload for creating an event category.
type EventCategoryRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// EventService manages institution-wide event announcements.
type EventService struct {
	repo      eventRepository
	users     eventActorRepository
	images    eventImageStore
	notifier  eventNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs the service. images and notifier may be nil.
func NewEventService(repo eventRepository, users eventActorRepository, images eventImageStore, notifier eventNotifier, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, users: users, images: images, notifier: notifier, validator: validate, logger: logger}
}

// ListCategories returns all event categories.
func (s *EventService) ListCategories(ctx context.Context) ([]models.EventCategory, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// CreateCategory adds an event category. Staff only.
func (s *EventService) CreateCategory(ctx context.Context, actorID string, req EventCategoryRequest) (*models.EventCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	category := &models.EventCategory{Name: req.Name}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return category, nil
}

// DeleteCategory removes an event category. Staff only.
func (s *EventService) DeleteCategory(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}
	return nil
}

// ListUpcoming returns events dated now or later, soonest first.
func (s *EventService) ListUpcoming(ctx context.Context) ([]models.Event, error) {
	events, err := s.repo.ListUpcoming(ctx, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, nil
}

// ListPast returns events already held, most recent first.
func (s *EventService) ListPast(ctx context.Context) ([]models.Event, error) {
	events, err := s.repo.ListPast(ctx, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, nil
}

// Get returns an event by ID.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create announces a new event and enqueues notification fanout to every
// user except the creator. Staff only.
func (s *EventService) Create(ctx context.Context, actorID string, req EventRequest, imageName string, image io.Reader) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}

	event := &models.Event{
		CategoryID:       req.CategoryID,
		Title:            req.Title,
		Date:             req.Date,
		Venue:            req.Venue,
		TargetAudience:   req.TargetAudience,
		Description:      req.Description,
		RegistrationLink: req.RegistrationLink,
		CreatedBy:        actorID,
	}

	if image != nil && s.images != nil {
		path, err := s.images.Save("event_images", imageName, image)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to store event image")
		}
		event.ImagePath = &path
	}

	if err := s.repo.Create(ctx, event); err != nil {
		if event.ImagePath != nil && s.images != nil {
			_ = s.images.Delete(*event.ImagePath)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	if s.notifier != nil {
		s.notifier.EventCreated(event.ID, actorID)
	}
	return event, nil
}

// Update modifies an event. Staff only.
func (s *EventService) Update(ctx context.Context, actorID, id string, req EventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}

	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	event.CategoryID = req.CategoryID
	event.Title = req.Title
	event.Date = req.Date
	event.Venue = req.Venue
	event.TargetAudience = req.TargetAudience
	event.Description = req.Description
	event.RegistrationLink = req.RegistrationLink

	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return event, nil
}

// Delete removes an event and its stored image. Staff only.
func (s *EventService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	if event.ImagePath != nil && s.images != nil {
		if err := s.images.Delete(*event.ImagePath); err != nil {
			s.logger.Warn("failed to remove event image", zap.String("path", *event.ImagePath), zap.Error(err))
		}
	}
	return nil
}

func (s *EventService) requireManage(ctx context.Context, actorID string) error {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !authz.Can(actor.Role, authz.EventManage, authz.Subject{ActorID: actor.ID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage events")
	}
	return nil
}
