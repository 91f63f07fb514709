package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type mockReservationRepo struct {
	reservations map[string]*models.Reservation
	overlap      *models.Reservation
	approveClash *models.Reservation
	created      *models.Reservation
	statusSet    map[string]models.ReservationStatus
	deleted      []string
}

func newMockReservationRepo() *mockReservationRepo {
	return &mockReservationRepo{
		reservations: map[string]*models.Reservation{},
		statusSet:    map[string]models.ReservationStatus{},
	}
}

func (m *mockReservationRepo) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	if r, ok := m.reservations[id]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReservationRepo) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	var out []models.Reservation
	for _, r := range m.reservations {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockReservationRepo) FindApprovedOverlap(ctx context.Context, resourceID string, start, end time.Time) (*models.Reservation, error) {
	if m.overlap != nil && m.overlap.ResourceID == resourceID && m.overlap.Overlaps(start, end) {
		return m.overlap, nil
	}
	return nil, nil
}

func (m *mockReservationRepo) Create(ctx context.Context, reservation *models.Reservation) error {
	reservation.ID = "res-new"
	m.created = reservation
	m.reservations[reservation.ID] = reservation
	return nil
}

func (m *mockReservationRepo) UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) error {
	m.statusSet[id] = status
	if r, ok := m.reservations[id]; ok {
		r.Status = status
	}
	return nil
}

func (m *mockReservationRepo) Approve(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error) {
	if m.approveClash != nil {
		return m.approveClash, nil
	}
	m.statusSet[reservation.ID] = models.ReservationApproved
	if r, ok := m.reservations[reservation.ID]; ok {
		r.Status = models.ReservationApproved
	}
	return nil, nil
}

func (m *mockReservationRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.reservations, id)
	return nil
}

type mockResourceRepo struct {
	resources map[string]*models.Resource
}

func (m *mockResourceRepo) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	if r, ok := m.resources[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserFinder struct {
	users map[string]*models.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func testUsers() *mockUserFinder {
	return &mockUserFinder{users: map[string]*models.User{
		"admin":      {ID: "admin", Role: models.RoleAdmin, Active: true},
		"it":         {ID: "it", Role: models.RoleITStaff, Active: true},
		"lecturer":   {ID: "lecturer", Role: models.RoleLecturer, Active: true},
		"student":    {ID: "student", Role: models.RoleStudent, Active: true},
		"intruder":   {ID: "intruder", Role: models.RoleStudent, Active: true},
		"lecturer-2": {ID: "lecturer-2", Role: models.RoleLecturer, Active: true},
	}}
}

func newReservationService(repo *mockReservationRepo) *ReservationService {
	resources := &mockResourceRepo{resources: map[string]*models.Resource{
		"room-1": {ID: "room-1", Name: "Lecture Hall A", Category: models.ResourceClassroom},
	}}
	return NewReservationService(repo, resources, testUsers(), nil, validator.New(), zap.NewNop())
}

func submitReq(requester string, start, end time.Time) SubmitReservationRequest {
	return SubmitReservationRequest{
		RequesterID: requester,
		ResourceID:  "room-1",
		StartTime:   start,
		EndTime:     end,
		Purpose:     "Guest lecture",
		Description: "External speaker session",
	}
}

func TestReservationSubmitCreatesPending(t *testing.T) {
	repo := newMockReservationRepo()
	svc := newReservationService(repo)

	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	reservation, err := svc.Submit(context.Background(), submitReq("lecturer", start, start.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, reservation.Status)
	assert.Equal(t, "lecturer", reservation.ReservedBy)
}

func TestReservationSubmitRejectsInvertedInterval(t *testing.T) {
	repo := newMockReservationRepo()
	svc := newReservationService(repo)

	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	_, err := svc.Submit(context.Background(), submitReq("lecturer", start, start))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReservationSubmitStudentNeedsCourseAndBatch(t *testing.T) {
	repo := newMockReservationRepo()
	svc := newReservationService(repo)

	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	_, err := svc.Submit(context.Background(), submitReq("student", start, start.Add(time.Hour)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req := submitReq("student", start, start.Add(time.Hour))
	course, batch := "cs-101", "2026-fall"
	req.Course, req.Batch = &course, &batch
	_, err = svc.Submit(context.Background(), req)
	require.NoError(t, err)
}

func TestReservationSubmitConflictsWithApproved(t *testing.T) {
	repo := newMockReservationRepo()
	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	repo.overlap = &models.Reservation{
		ID:         "res-approved",
		ResourceID: "room-1",
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Status:     models.ReservationApproved,
	}
	svc := newReservationService(repo)

	_, err := svc.Submit(context.Background(), submitReq("lecturer", start.Add(time.Hour), start.Add(3*time.Hour)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReservationConflict.Code, appErrors.FromError(err).Code)
}

func TestReservationSubmitBackToBackIsNotAConflict(t *testing.T) {
	repo := newMockReservationRepo()
	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	repo.overlap = &models.Reservation{
		ID:         "res-approved",
		ResourceID: "room-1",
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Status:     models.ReservationApproved,
	}
	svc := newReservationService(repo)

	// Starts exactly when the approved one ends.
	_, err := svc.Submit(context.Background(), submitReq("lecturer", start.Add(2*time.Hour), start.Add(3*time.Hour)))
	require.NoError(t, err)
}

func TestReservationDecideRequiresStaff(t *testing.T) {
	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationPending}
	svc := newReservationService(repo)

	for _, actor := range []string{"lecturer", "student"} {
		_, err := svc.Decide(context.Background(), DecideReservationRequest{
			ActorID: actor, ReservationID: "res-1", Decision: models.DecisionApprove,
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestReservationDecideApprove(t *testing.T) {
	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationPending}
	svc := newReservationService(repo)

	reservation, err := svc.Decide(context.Background(), DecideReservationRequest{
		ActorID: "it", ReservationID: "res-1", Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationApproved, reservation.Status)
}

func TestReservationDecideReject(t *testing.T) {
	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationPending}
	svc := newReservationService(repo)

	reservation, err := svc.Decide(context.Background(), DecideReservationRequest{
		ActorID: "admin", ReservationID: "res-1", Decision: models.DecisionReject,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, reservation.Status)
}

func TestReservationDecideOnlyPending(t *testing.T) {
	repo := newMockReservationRepo()
	for _, status := range []models.ReservationStatus{
		models.ReservationApproved, models.ReservationRejected, models.ReservationCancelled,
	} {
		repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: status}
		svc := newReservationService(repo)

		_, err := svc.Decide(context.Background(), DecideReservationRequest{
			ActorID: "admin", ReservationID: "res-1", Decision: models.DecisionApprove,
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	}
}

func TestReservationApproveRaceLeavesPending(t *testing.T) {
	repo := newMockReservationRepo()
	start := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	repo.reservations["res-1"] = &models.Reservation{
		ID: "res-1", ReservedBy: "student", ResourceID: "room-1",
		StartTime: start, EndTime: start.Add(time.Hour),
		Status: models.ReservationPending,
	}
	repo.approveClash = &models.Reservation{
		ID: "res-2", ResourceID: "room-1",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
		Status: models.ReservationApproved,
	}
	svc := newReservationService(repo)

	_, err := svc.Decide(context.Background(), DecideReservationRequest{
		ActorID: "admin", ReservationID: "res-1", Decision: models.DecisionApprove,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReservationConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.ReservationPending, repo.reservations["res-1"].Status)
}

func TestReservationCancelOnlyApproved(t *testing.T) {
	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationPending}
	svc := newReservationService(repo)

	_, err := svc.Cancel(context.Background(), "student", "res-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestReservationCancelByOwnerAndStaff(t *testing.T) {
	for _, actor := range []string{"student", "admin", "it"} {
		repo := newMockReservationRepo()
		repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationApproved}
		svc := newReservationService(repo)

		reservation, err := svc.Cancel(context.Background(), actor, "res-1")
		require.NoError(t, err, "actor %s", actor)
		assert.Equal(t, models.ReservationCancelled, reservation.Status)
	}
}

func TestReservationCancelForbiddenForOthers(t *testing.T) {
	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationApproved}
	svc := newReservationService(repo)

	_, err := svc.Cancel(context.Background(), "intruder", "res-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReservationDeleteRequiresTerminalState(t *testing.T) {
	for _, status := range []models.ReservationStatus{models.ReservationPending, models.ReservationApproved} {
		repo := newMockReservationRepo()
		repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: status}
		svc := newReservationService(repo)

		err := svc.Delete(context.Background(), "admin", "res-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	}

	repo := newMockReservationRepo()
	repo.reservations["res-1"] = &models.Reservation{ID: "res-1", ReservedBy: "student", Status: models.ReservationCancelled}
	svc := newReservationService(repo)
	require.NoError(t, svc.Delete(context.Background(), "student", "res-1"))
	assert.Contains(t, repo.deleted, "res-1")
}

func TestReservationExportStaffOnly(t *testing.T) {
	repo := newMockReservationRepo()
	svc := newReservationService(repo)

	_, _, err := svc.Export(context.Background(), "student", "csv", models.ReservationFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	payload, contentType, err := svc.Export(context.Background(), "admin", "csv", models.ReservationFilter{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.NotEmpty(t, payload)
}
