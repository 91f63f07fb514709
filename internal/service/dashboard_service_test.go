package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
)

type mockDashUsers struct {
	users  map[string]*models.User
	byRole map[models.UserRole]int
}

func (m *mockDashUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDashUsers) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return m.byRole[role], nil
}

type mockDashReservations struct {
	byStatus map[models.ReservationStatus]int
	byUser   int
}

func (m *mockDashReservations) CountByStatus(ctx context.Context, status models.ReservationStatus) (int, error) {
	return m.byStatus[status], nil
}

func (m *mockDashReservations) CountByUser(ctx context.Context, userID string) (int, error) {
	return m.byUser, nil
}

type mockDashChats struct {
	all, mine int
}

func (m *mockDashChats) CountAll(ctx context.Context) (int, error) { return m.all, nil }
func (m *mockDashChats) CountByMember(ctx context.Context, userID string) (int, error) {
	return m.mine, nil
}

type mockDashRoster struct {
	courses, assignments, enrollments int
}

func (m *mockDashRoster) CountCourses(ctx context.Context) (int, error) { return m.courses, nil }
func (m *mockDashRoster) CountAssignmentsForLecturer(ctx context.Context, lecturerID string) (int, error) {
	return m.assignments, nil
}
func (m *mockDashRoster) CountEnrollmentsForStudent(ctx context.Context, studentID string) (int, error) {
	return m.enrollments, nil
}

type mockDashEvents struct {
	upcoming int
}

func (m *mockDashEvents) CountUpcoming(ctx context.Context, ref time.Time) (int, error) {
	return m.upcoming, nil
}

type mockDashCache struct {
	store map[string][]byte
	sets  int
}

func (m *mockDashCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockDashCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	m.sets++
	return nil
}

func (m *mockDashCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.store = map[string][]byte{}
	return nil
}

func newDashboardService(role models.UserRole, cache *mockDashCache) *DashboardService {
	return NewDashboardService(DashboardServiceParams{
		Users: &mockDashUsers{
			users:  map[string]*models.User{"u-1": {ID: "u-1", Role: role, Active: true}},
			byRole: map[models.UserRole]int{models.RoleStudent: 120, models.RoleLecturer: 14},
		},
		Reservations: &mockDashReservations{
			byStatus: map[models.ReservationStatus]int{models.ReservationPending: 3, models.ReservationApproved: 7},
			byUser:   2,
		},
		Chats:    &mockDashChats{all: 9, mine: 4},
		Roster:   &mockDashRoster{courses: 6, assignments: 5, enrollments: 3},
		Events:   &mockDashEvents{upcoming: 2},
		Cache:    cache,
		CacheTTL: time.Minute,
		Logger:   zap.NewNop(),
	})
}

func TestDashboardStaffSummary(t *testing.T) {
	cache := &mockDashCache{store: map[string][]byte{}}
	svc := newDashboardService(models.RoleAdmin, cache)

	summary, cached, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, summary.TotalStudents)
	assert.Equal(t, 120, *summary.TotalStudents)
	require.NotNil(t, summary.PendingReservations)
	assert.Equal(t, 3, *summary.PendingReservations)
	assert.Equal(t, 2, summary.UpcomingEvents)
	assert.Nil(t, summary.MyReservations)
}

func TestDashboardStudentSummary(t *testing.T) {
	cache := &mockDashCache{store: map[string][]byte{}}
	svc := newDashboardService(models.RoleStudent, cache)

	summary, cached, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Nil(t, summary.TotalStudents)
	require.NotNil(t, summary.MyReservations)
	assert.Equal(t, 2, *summary.MyReservations)
	require.NotNil(t, summary.MyEnrollments)
	assert.Equal(t, 3, *summary.MyEnrollments)
	assert.Nil(t, summary.MyAssignments)
}

func TestDashboardInvalidateForcesRecompute(t *testing.T) {
	cache := &mockDashCache{store: map[string][]byte{}}
	svc := newDashboardService(models.RoleAdmin, cache)

	_, _, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	svc.Invalidate(context.Background())

	_, cached, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, cache.sets)
}

func TestDashboardSecondReadHitsCache(t *testing.T) {
	cache := &mockDashCache{store: map[string][]byte{}}
	svc := newDashboardService(models.RoleLecturer, cache)

	_, cached, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, cache.sets)

	summary, cached, err := svc.Summary(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, cached)
	require.NotNil(t, summary.MyAssignments)
	assert.Equal(t, 5, *summary.MyAssignments)
	assert.Equal(t, 1, cache.sets)
}
