package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/go-playground/validator/v10"

	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	byEmail   map[string]*models.User
	listErr   error
	auditLogs []models.AuditLog
	deleted   []string
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
	}
	for _, u := range users {
		m.users[u.ID] = u
		if u.Email != "" {
			m.byEmail[u.Email] = u
		}
	}
	return m
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	m.byEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func adminAndStaffUsers() []*models.User {
	return []*models.User{
		{ID: "admin", Email: "admin@campus.test", Role: models.RoleAdmin, Active: true},
		{ID: "it", Email: "it@campus.test", Role: models.RoleITStaff, Active: true},
		{ID: "lecturer", Email: "lect@campus.test", Role: models.RoleLecturer, Active: true},
	}
}

func newUserService(repo *mockUserRepo) *UserService {
	return NewUserService(repo, validator.New(), zap.NewNop())
}

func TestUserCreateByAdmin(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "New.Student@Campus.Test",
		FullName: "New Student",
		Role:     models.RoleStudent,
		Active:   true,
		Password: "s3cret-pass",
	}, "admin", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "new.student@campus.test", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.PasswordHash)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
	assert.Equal(t, "admin", *repo.auditLogs[0].UserID)
}

func TestUserCreateForbiddenForNonAdmin(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	for _, actor := range []string{"it", "lecturer"} {
		_, err := svc.Create(context.Background(), CreateUserRequest{
			Email:    "x@campus.test",
			FullName: "X",
			Role:     models.RoleStudent,
			Password: "s3cret-pass",
		}, actor, models.LoginRequest{})
		require.Error(t, err, actor)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code, actor)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "it@campus.test",
		FullName: "Clone",
		Role:     models.RoleStudent,
		Password: "s3cret-pass",
	}, "admin", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsShortPassword(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "y@campus.test",
		FullName: "Y",
		Role:     models.RoleStudent,
		Password: "short",
	}, "admin", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateChangesRoleAndActive(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	inactive := false
	user, err := svc.Update(context.Background(), "lecturer", UpdateUserRequest{
		FullName: "Renamed Lecturer",
		Role:     models.RoleITStaff,
		Active:   &inactive,
	}, "admin", models.LoginRequest{})
	require.NoError(t, err)

	assert.Equal(t, "Renamed Lecturer", user.FullName)
	assert.Equal(t, models.RoleITStaff, user.Role)
	assert.False(t, user.Active)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserUpdate, repo.auditLogs[0].Action)
	assert.True(t, strings.Contains(string(repo.auditLogs[0].OldValues), "lecturer"))
}

func TestUserUpdateUnknownID(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	_, err := svc.Update(context.Background(), "ghost", UpdateUserRequest{
		FullName: "Ghost",
		Role:     models.RoleStudent,
	}, "admin", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserDeleteDeactivates(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	err := svc.Delete(context.Background(), "lecturer", "admin", models.LoginRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"lecturer"}, repo.deleted)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)
}

func TestUserGetNotFound(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserListDefaultsPagination(t *testing.T) {
	repo := newMockUserRepo(adminAndStaffUsers()...)
	svc := newUserService(repo)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)

	assert.Len(t, users, 3)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 3, pagination.TotalCount)
}
