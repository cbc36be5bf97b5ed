package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushq/sis-api/internal/models"
	appErrors "github.com/campushq/sis-api/pkg/errors"
)

type authRepoStub struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (a *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range a.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (a *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := a.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (a *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (a *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = "token-1"
	}
	a.tokens[token.Token] = token
	return nil
}

func (a *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := a.tokens[token]; ok {
		copied := *rt
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not recognised")
}

func (a *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	for _, token := range a.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &at
		}
	}
	return nil
}

func (a *authRepoStub) RevokeUserTokens(ctx context.Context, userID string, at time.Time) error {
	for _, token := range a.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *authRepoStub) {
	t.Helper()
	repo := newAuthRepoStub()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-42"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["user-1"] = &models.User{
		ID:           "user-1",
		Email:        "admin@school.test",
		FullName:     "Admin",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Active:       true,
	}
	svc := NewAuthService(repo, &auditLogStub{}, nil, nil, AuthConfig{
		Secret:        "test-secret",
		AccessExpiry:  time.Hour,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "sis-api-test",
	})
	return svc, repo
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@school.test",
		Password: "correct-horse-42",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Contains(t, repo.tokens, resp.RefreshToken)

	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@school.test",
		Password: "wrong-password-99",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@school.test",
		Password: "correct-horse-42",
	})
	require.NoError(t, err)

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), repo.tokens[resp.RefreshToken].ID, time.Now()))
	_, err = svc.Refresh(context.Background(), resp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "admin@school.test",
		Password: "correct-horse-42",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "user-1", resp.RefreshToken))
	require.True(t, repo.tokens[resp.RefreshToken].Revoked)

	err = svc.Logout(context.Background(), "other-user", resp.RefreshToken)
	require.Error(t, err)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
