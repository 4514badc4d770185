package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lootbay/marketplace-backend/pkg/auth"
	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejects(t *testing.T) {
	foreign := config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 10}
	tests := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic dXNlcjpwYXNz",
		"empty bearer":    "Bearer ",
		"garbage":         "Bearer invalid",
		"foreign issuer":  "Bearer " + mintTestToken(t, foreign, uuid.New(), enums.RoleBuyer),
		"different realm": "Bearer " + mintTestToken(t, config.JWTConfig{Secret: "other", Issuer: "issuer", ExpirationMinutes: 10}, uuid.New(), enums.RoleBuyer),
	}
	handler := Auth(testJWT, nil)(okHandler())
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			require.Equal(t, http.StatusUnauthorized, resp.Code)
		})
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, testJWT, userID, enums.RoleSeller)

	var got auth.Subject
	var found bool
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, found)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, enums.RoleSeller, got.Role)
}

func TestUserIDFromContextAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, UserIDFromContext(req.Context()))
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.RoleSeller, enums.RoleAdmin)(okHandler())

	tests := []struct {
		role enums.Role
		want int
	}{
		{enums.RoleSeller, http.StatusOK},
		{enums.RoleAdmin, http.StatusOK},
		{enums.RoleBuyer, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), auth.Subject{UserID: uuid.New(), Role: tt.role}))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, tt.want, resp.Code, "role %q", tt.role)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := auth.Mint(cfg, time.Now(), auth.Subject{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}
