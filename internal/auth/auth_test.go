package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/config"
	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/testutil"
)

func newTokenManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	tm, err := auth.NewTokenManager(&config.AuthConfig{JWTSecret: "test-secret", Issuer: "pfmt-test", TokenTTL: 60})
	require.NoError(t, err)
	return tm
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := newTokenManager(t)
	user := &domain.User{Record: domain.Record{ID: 7}, Name: "Dana", Email: "dana@example.com", Role: domain.RoleDirector}

	token, err := tm.Issue(user)
	require.NoError(t, err)

	userCtx, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 7, userCtx.UserID)
	assert.Equal(t, domain.RoleDirector, userCtx.Role)
	assert.True(t, userCtx.IsAdmin())
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := newTokenManager(t)
	other, err := auth.NewTokenManager(&config.AuthConfig{JWTSecret: "another-secret", Issuer: "pfmt-test", TokenTTL: 60})
	require.NoError(t, err)
	user := &domain.User{Record: domain.Record{ID: 1}, Role: domain.RoleAdmin}

	foreign, err := other.Issue(user)
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "pfmt-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", Issuer: "pfmt-test"},
	})
	badSubjectToken, err := badSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "garbage", token: "not-a-token", wantErr: auth.ErrInvalidToken},
		{name: "wrong secret", token: foreign, wantErr: auth.ErrInvalidToken},
		{name: "expired", token: expiredToken, wantErr: auth.ErrExpiredToken},
		{name: "non numeric subject", token: badSubjectToken, wantErr: auth.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := auth.NewTokenManager(&config.AuthConfig{})
	assert.Error(t, err)
}

func TestMiddleware_Authenticate(t *testing.T) {
	repos := testutil.NewRepositories(t)
	tm := newTokenManager(t)
	mw := auth.NewMiddleware(tm, repos.Users, zap.NewNop())

	active := testutil.CreateTestUser(t, repos, "Active", domain.RoleProjectManager)
	inactive := testutil.CreateTestUser(t, repos, "Inactive", domain.RoleProjectManager)
	_, err := repos.Users.Update(context.Background(), inactive.ID, map[string]any{"isActive": false})
	require.NoError(t, err)

	// the token claims Admin but the stored role is authoritative
	elevated := *active
	elevated.Role = domain.RoleAdmin
	activeToken, err := tm.Issue(&elevated)
	require.NoError(t, err)
	inactiveToken, err := tm.Issue(inactive)
	require.NoError(t, err)
	ghostToken, err := tm.Issue(&domain.User{Record: domain.Record{ID: 999}, Role: domain.RoleAdmin})
	require.NoError(t, err)

	var captured *auth.UserContext
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = auth.MustFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "unknown user", header: "Bearer " + ghostToken, want: http.StatusUnauthorized},
		{name: "inactive user", header: "Bearer " + inactiveToken, want: http.StatusUnauthorized},
		{name: "active user", header: "Bearer " + activeToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	require.NotNil(t, captured)
	assert.Equal(t, active.ID, captured.UserID)
	assert.Equal(t, domain.RoleProjectManager, captured.Role)
}

func TestMiddleware_RequireRole(t *testing.T) {
	mw := auth.NewMiddleware(nil, nil, zap.NewNop())
	handler := mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		user *auth.UserContext
		want int
	}{
		{name: "no user", user: nil, want: http.StatusForbidden},
		{name: "project manager", user: &auth.UserContext{UserID: 1, Role: domain.RoleProjectManager}, want: http.StatusForbidden},
		{name: "director", user: &auth.UserContext{UserID: 2, Role: domain.RoleDirector}, want: http.StatusOK},
		{name: "admin", user: &auth.UserContext{UserID: 3, Role: domain.RoleAdmin}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/migration", nil)
			if tt.user != nil {
				req = req.WithContext(auth.WithUserContext(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
