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

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type userRepoMock struct {
	users     map[string]models.User
	lastLogin map[string]time.Time
}

func (m *userRepoMock) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.users[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *userRepoMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *userRepoMock) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if m.lastLogin == nil {
		m.lastLogin = map[string]time.Time{}
	}
	m.lastLogin[id] = ts
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthService(users *userRepoMock) *AuthService {
	return NewAuthService(users, AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "course-flow-api"}, validator.New(), zap.NewNop())
}

func TestAuthServiceLogin(t *testing.T) {
	users := &userRepoMock{users: map[string]models.User{
		"admin@school.test": {
			ID:           "u1",
			SchoolID:     "sch-1",
			Email:        "admin@school.test",
			PasswordHash: hashPassword(t, "secret123"),
			FullName:     "Admin",
			Role:         models.RoleAdmin,
			Active:       true,
		},
	}}
	svc := newAuthService(users)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@school.test", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Contains(t, users.lastLogin, "u1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "sch-1", claims.SchoolID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	users := &userRepoMock{users: map[string]models.User{
		"admin@school.test": {ID: "u1", Email: "admin@school.test", PasswordHash: hashPassword(t, "secret123"), Active: true},
	}}
	svc := newAuthService(users)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@school.test", Password: "nope12345"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(&userRepoMock{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@school.test", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	users := &userRepoMock{users: map[string]models.User{
		"old@school.test": {ID: "u2", Email: "old@school.test", PasswordHash: hashPassword(t, "secret123"), Active: false},
	}}
	svc := newAuthService(users)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "old@school.test", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceProfile(t *testing.T) {
	users := &userRepoMock{users: map[string]models.User{
		"admin@school.test": {ID: "u1", SchoolID: "sch-1", Email: "admin@school.test", FullName: "Admin", Role: models.RoleAdmin, Active: true},
	}}
	svc := newAuthService(users)

	info, err := svc.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "sch-1", info.SchoolID)
	assert.Equal(t, models.RoleAdmin, info.Role)

	_, err = svc.Profile(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(&userRepoMock{})

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	users := &userRepoMock{users: map[string]models.User{
		"admin@school.test": {ID: "u1", Email: "admin@school.test", PasswordHash: hashPassword(t, "secret123"), Active: true},
	}}
	issuer := newAuthService(users)
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "admin@school.test", Password: "secret123"})
	require.NoError(t, err)

	verifier := NewAuthService(&userRepoMock{}, AuthConfig{Secret: "other-secret", Expiration: time.Hour}, validator.New(), zap.NewNop())
	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
