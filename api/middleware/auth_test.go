package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelink/servicelink-backend/pkg/auth"
	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/enums"
)

var authConfig = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}

func authed(t *testing.T, next http.Handler) http.Handler {
	t.Helper()
	v, err := auth.NewVerifier(authConfig)
	require.NoError(t, err)
	return Auth(v, nil)(next)
}

func callWith(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func mintFor(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.Mint(cfg, time.Now(), auth.Identity{UserID: userID, Email: "pro@example.com", Role: role})
	require.NoError(t, err)
	return token
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	foreign := authConfig
	foreign.Issuer = "someone-else"
	h := authed(t, okHandler())

	for name, header := range map[string]string{
		"missing":      "",
		"garbage":      "Bearer invalid",
		"other issuer": "Bearer " + mintFor(t, foreign, uuid.New(), enums.UserRoleCustomer),
		"empty bearer": "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, callWith(h, header).Code)
		})
	}
}

func TestAuthRecordsCaller(t *testing.T) {
	userID := uuid.New()
	var actor struct {
		user  uuid.UUID
		role  string
		email string
	}
	h := authed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor.user = UserUUIDFromContext(r.Context())
		actor.role = RoleFromContext(r.Context())
		actor.email = EmailFromContext(r.Context())
	}))

	token := mintFor(t, authConfig, userID, enums.UserRoleProvider)
	for _, header := range []string{"Bearer " + token, "bearer " + token, token} {
		assert.Equal(t, http.StatusOK, callWith(h, header).Code, header)
	}
	assert.Equal(t, userID, actor.user)
	assert.Equal(t, string(enums.UserRoleProvider), actor.role)
	assert.Equal(t, "pro@example.com", actor.email)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(nil, enums.UserRoleProvider, enums.UserRoleAdmin)(okHandler())

	for role, want := range map[enums.UserRole]int{
		enums.UserRoleProvider: http.StatusOK,
		enums.UserRoleAdmin:    http.StatusOK,
		enums.UserRoleCustomer: http.StatusForbidden,
		"":                     http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), string(role)))
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		assert.Equal(t, want, resp.Code, "role %q", role)
	}
}

func TestUserUUIDFromContextMalformed(t *testing.T) {
	ctx := WithUserID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "not-a-uuid")
	assert.Equal(t, uuid.Nil, UserUUIDFromContext(ctx))
}
