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
	"golang.org/x/crypto/bcrypt"

	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	usersByEmail     map[string]*models.User
	refreshTokens    map[string]*models.RefreshToken
	auditLogs        []models.AuditLog
	lastLoginUpdated bool
	passwordUpdated  string
	revokedUserIDs   []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:         map[string]*models.User{},
		usersByEmail:  map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
	}
}

func (m *mockAuthRepo) addUser(user *models.User) {
	m.users[user.ID] = user
	m.usersByEmail[user.Email] = user
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdated = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUserIDs = append(m.revokedUserIDs, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "campus-admin-api",
	}
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u-1", Email: "admin@campus.test", FullName: "Admin",
		Role: models.RoleAdmin, Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@campus.test", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u-1", resp.User.ID)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u-1", Email: "admin@campus.test", Role: models.RoleAdmin, Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@campus.test", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u-1", Email: "gone@campus.test", Role: models.RoleStudent, Active: false,
		PasswordHash: hashPassword(t, "secret123"),
	})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "gone@campus.test", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "u-1", Email: "admin@campus.test", Role: models.RoleAdmin, Active: true})
	repo.refreshTokens["old-token"] = &models.RefreshToken{
		ID: "rt-1", UserID: "u-1", Token: "old-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.True(t, repo.refreshTokens["old-token"].Revoked)
}

func TestAuthRefreshRejectsExpired(t *testing.T) {
	repo := newMockAuthRepo()
	repo.refreshTokens["old-token"] = &models.RefreshToken{
		ID: "rt-1", UserID: "u-1", Token: "old-token",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthLogoutRejectsForeignToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.refreshTokens["token"] = &models.RefreshToken{
		ID: "rt-1", UserID: "u-1", Token: "token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.Logout(context.Background(), "token", "u-2", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u-1", Email: "admin@campus.test", Role: models.RoleAdmin, Active: true,
		PasswordHash: hashPassword(t, "oldpass99"),
	})
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{
		OldPassword: "oldpass99", NewPassword: "newpass99",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwordUpdated)
	assert.Contains(t, repo.revokedUserIDs, "u-1")
}

func TestAuthValidateTokenRejectsForgedSignature(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u-1", Email: "admin@campus.test", Role: models.RoleAdmin, Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	})
	issuer := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "admin@campus.test", Password: "secret123"})
	require.NoError(t, err)

	otherCfg := testAuthConfig()
	otherCfg.AccessTokenSecret = "different-secret"
	verifier := NewAuthService(repo, validator.New(), zap.NewNop(), otherCfg)

	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
