package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/authz"
	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/export"
)

type reservationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error)
	FindApprovedOverlap(ctx context.Context, resourceID string, start, end time.Time) (*models.Reservation, error)
	Create(ctx context.Context, reservation *models.Reservation) error
	UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) error
	Approve(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error)
	Delete(ctx context.Context, id string) error
}

type reservationResourceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
}

type reservationActorRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReservationService implements the reservation workflow: submission with
// conflict detection, the approval state machine, and role-gated transitions.
type ReservationService struct {
	repo      reservationRepository
	resources reservationResourceRepository
	users     reservationActorRepository
	dash      dashboardInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReservationService constructs the service. dash may be nil; cached
// dashboards then age out by TTL instead of being dropped on writes.
func NewReservationService(repo reservationRepository, resources reservationResourceRepository, users reservationActorRepository, dash dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{repo: repo, resources: resources, users: users, dash: dash, validator: validate, logger: logger}
}

func (s *ReservationService) invalidateDashboards(ctx context.Context) {
	if s.dash != nil {
		s.dash.Invalidate(ctx)
	}
}

// SubmitReservationRequest describes a reservation submission.
type SubmitReservationRequest struct {
	RequesterID string    `json:"-" validate:"required"`
	ResourceID  string    `json:"resource_id" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
	Purpose     string    `json:"purpose" validate:"required,max=255"`
	Description string    `json:"description" validate:"required"`
	Course      *string   `json:"course,omitempty"`
	Batch       *string   `json:"batch,omitempty"`
}

// DecideReservationRequest carries a staff verdict on a pending reservation.
type DecideReservationRequest struct {
	ActorID       string                     `json:"-" validate:"required"`
	ReservationID string                     `json:"-" validate:"required"`
	Decision      models.ReservationDecision `json:"decision" validate:"required"`
}

// Submit validates a reservation request, checks the requested interval
// against approved reservations only, and creates it in pending status.
// Pending requests never block each other; contention is resolved at
// approval time.
func (s *ReservationService) Submit(ctx context.Context, req SubmitReservationRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reservation payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	requester, err := s.users.FindByID(ctx, req.RequesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "requester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester")
	}
	if requester.Role == models.RoleStudent {
		if req.Course == nil || *req.Course == "" || req.Batch == nil || *req.Batch == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course and batch are required for student reservations")
		}
	}

	if _, err := s.resources.GetByID(ctx, req.ResourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}

	conflict, err := s.repo.FindApprovedOverlap(ctx, req.ResourceID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check availability")
	}
	if conflict != nil {
		return nil, conflictError(conflict)
	}

	reservation := &models.Reservation{
		ReservedBy:  req.RequesterID,
		ResourceID:  req.ResourceID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Purpose:     req.Purpose,
		Description: req.Description,
		Course:      req.Course,
		Batch:       req.Batch,
		Status:      models.ReservationPending,
	}
	if err := s.repo.Create(ctx, reservation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reservation")
	}
	s.logger.Info("reservation submitted",
		zap.String("reservation_id", reservation.ID),
		zap.String("resource_id", reservation.ResourceID),
		zap.String("reserved_by", reservation.ReservedBy))
	s.invalidateDashboards(ctx)
	return reservation, nil
}

// Decide approves or rejects a pending reservation. Approval re-checks the
// interval against already-approved reservations inside one transaction, so
// a second approval of an overlapping request fails and the reservation
// stays pending.
func (s *ReservationService) Decide(ctx context.Context, req DecideReservationRequest) (*models.Reservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}

	actor, err := s.loadActor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	reservation, err := s.loadReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}

	if !authz.Can(actor.Role, authz.ReservationDecide, authz.Subject{ActorID: actor.ID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may decide reservations")
	}
	if reservation.Status != models.ReservationPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("reservation is %s, only pending reservations can be decided", reservation.Status))
	}

	if req.Decision == models.DecisionReject {
		if err := s.repo.UpdateStatus(ctx, reservation.ID, models.ReservationRejected); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject reservation")
		}
		reservation.Status = models.ReservationRejected
		s.invalidateDashboards(ctx)
		return reservation, nil
	}

	conflict, err := s.repo.Approve(ctx, reservation)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve reservation")
	}
	if conflict != nil {
		return nil, conflictError(conflict)
	}
	reservation.Status = models.ReservationApproved
	s.logger.Info("reservation approved",
		zap.String("reservation_id", reservation.ID),
		zap.String("actor_id", actor.ID))
	s.invalidateDashboards(ctx)
	return reservation, nil
}

// Cancel withdraws an approved reservation. Allowed for staff or the
// original requester; pending reservations cannot be cancelled directly.
func (s *ReservationService) Cancel(ctx context.Context, actorID, reservationID string) (*models.Reservation, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	reservation, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if !authz.Can(actor.Role, authz.ReservationCancel, authz.Subject{ActorID: actor.ID, OwnerID: reservation.ReservedBy}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to cancel this reservation")
	}
	if reservation.Status != models.ReservationApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("reservation is %s, only approved reservations can be cancelled", reservation.Status))
	}

	if err := s.repo.UpdateStatus(ctx, reservation.ID, models.ReservationCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel reservation")
	}
	reservation.Status = models.ReservationCancelled
	s.invalidateDashboards(ctx)
	return reservation, nil
}

// Delete permanently removes a reservation from a terminal state
// (rejected or cancelled). Allowed for staff or the original requester.
func (s *ReservationService) Delete(ctx context.Context, actorID, reservationID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	reservation, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	if !authz.Can(actor.Role, authz.ReservationDelete, authz.Subject{ActorID: actor.ID, OwnerID: reservation.ReservedBy}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this reservation")
	}
	if !reservation.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("reservation is %s, only rejected or cancelled reservations can be deleted", reservation.Status))
	}

	if err := s.repo.Delete(ctx, reservation.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete reservation")
	}
	s.invalidateDashboards(ctx)
	return nil
}

// Get returns a reservation by id.
func (s *ReservationService) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return s.loadReservation(ctx, id)
}

// List returns reservations with pagination.
func (s *ReservationService) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reservations")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Export renders the reservation listing as CSV or PDF for staff reporting.
func (s *ReservationService) Export(ctx context.Context, actorID, format string, filter models.ReservationFilter) ([]byte, string, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, "", err
	}
	if !authz.Can(actor.Role, authz.ReportExport, authz.Subject{ActorID: actor.ID}) {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "only staff may export reservation reports")
	}

	filter.Page = 1
	filter.PageSize = 100
	rows, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservations for export")
	}

	dataset := export.Dataset{
		Headers: []string{"Resource", "Requester", "Start", "End", "Purpose", "Status"},
	}
	for _, r := range rows {
		row := map[string]string{
			"Resource":  deref(r.ResourceName),
			"Requester": deref(r.RequesterName),
			"Start":     r.StartTime.Format(time.RFC3339),
			"End":       r.EndTime.Format(time.RFC3339),
			"Purpose":   r.Purpose,
			"Status":    string(r.Status),
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Reservation Schedule")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ReservationService) loadActor(ctx context.Context, id string) (*models.User, error) {
	actor, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "actor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor")
	}
	return actor, nil
}

func (s *ReservationService) loadReservation(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation")
	}
	return reservation, nil
}

func conflictError(conflict *models.Reservation) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrReservationConflict,
		fmt.Sprintf("resource already reserved from %s to %s",
			conflict.StartTime.Format(time.RFC3339), conflict.EndTime.Format(time.RFC3339)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
