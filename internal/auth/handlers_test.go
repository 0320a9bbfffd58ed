package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandlerFixture(t *testing.T) (*AuthManager, *gin.Engine) {
	t.Helper()

	am := NewTestAuthManager(AuthConfig{JWTSecret: "test-secret", RateLimit: testRateLimit})
	handlers := NewAuthHandlers(am)

	router := gin.New()
	handlers.SetupRoutes(router.Group("/api/v1"))
	return am, router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range setup {
		fn(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       RegisterRequest
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid registration",
			body:       RegisterRequest{Username: "analyst", Email: "analyst@example.com", Password: "longenough"},
			wantStatus: http.StatusCreated,
			wantBody:   "Registration successful",
		},
		{
			name:       "malformed email",
			body:       RegisterRequest{Username: "analyst", Email: "not-an-email", Password: "longenough"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid email format",
		},
		{
			name:       "short password",
			body:       RegisterRequest{Username: "analyst", Email: "analyst@example.com", Password: "short"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "at least 8 characters",
		},
		{
			name:       "missing username",
			body:       RegisterRequest{Email: "analyst@example.com", Password: "longenough"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := newHandlerFixture(t)

			w := postJSON(t, router, "/api/v1/auth/register", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRegister_IssuesUsableCredentials(t *testing.T) {
	am, router := newHandlerFixture(t)

	w := postJSON(t, router, "/api/v1/auth/register",
		RegisterRequest{Username: "analyst", Email: "analyst@example.com", Password: "longenough"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "analyst", resp.User.Username)

	claims, err := am.ValidateJWTToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	// Session cookie should accompany the token.
	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	_, err = am.ValidateSession(sessionCookie.Value)
	assert.NoError(t, err)
}

func TestRegister_DuplicateUsernameConflicts(t *testing.T) {
	_, router := newHandlerFixture(t)

	body := RegisterRequest{Username: "analyst", Email: "analyst@example.com", Password: "longenough"}
	w := postJSON(t, router, "/api/v1/auth/register", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, router, "/api/v1/auth/register", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin(t *testing.T) {
	am, router := newHandlerFixture(t)

	_, err := am.CreateUserWithPassword("analyst", "analyst@example.com", "longenough", []string{"user"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       LoginRequest
		wantStatus int
	}{
		{"valid credentials", LoginRequest{Username: "analyst", Password: "longenough"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "analyst", Password: "wrongpass"}, http.StatusUnauthorized},
		{"unknown user", LoginRequest{Username: "nobody", Password: "longenough"}, http.StatusUnauthorized},
		{"missing password", LoginRequest{Username: "analyst"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/api/v1/auth/login", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, "Login successful", resp.Message)
			}
		})
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	am, router := newHandlerFixture(t)

	user, err := am.CreateUserWithPassword("analyst", "analyst@example.com", "longenough", []string{"user"})
	require.NoError(t, err)
	sessionID, err := am.CreateSession(user.ID)
	require.NoError(t, err)

	w := postJSON(t, router, "/api/v1/auth/logout", gin.H{}, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	_, err = am.ValidateSession(sessionID)
	assert.Error(t, err, "session should be gone after logout")
}

func TestGetCurrentUserEndpoint(t *testing.T) {
	am, router := newHandlerFixture(t)

	user, err := am.CreateUser("analyst", "analyst@example.com", []string{"user"})
	require.NoError(t, err)
	token, err := am.CreateJWTToken(user)
	require.NoError(t, err)

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "analyst")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetAuthStatus(t *testing.T) {
	am, router := newHandlerFixture(t)

	user, err := am.CreateUser("analyst", "analyst@example.com", []string{"user"})
	require.NoError(t, err)
	token, err := am.CreateJWTToken(user)
	require.NoError(t, err)

	t.Run("anonymous caller", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var status map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, false, status["authenticated"])
		assert.Equal(t, true, status["authentication_enabled"])
	})

	t.Run("authenticated caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"authenticated":true`)
	})
}

func TestCreateAPIKeyEndpoint(t *testing.T) {
	am, router := newHandlerFixture(t)

	user, err := am.CreateUser("analyst", "analyst@example.com", []string{"user"})
	require.NoError(t, err)
	token, err := am.CreateJWTToken(user)
	require.NoError(t, err)
	withToken := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	t.Run("creates key and returns plaintext once", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/api-keys",
			CreateAPIKeyRequest{Name: "cli", Permissions: []string{PermissionChatAsk}, ExpiresIn: "30d"},
			withToken)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp CreateAPIKeyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Key, "ac_")
		assert.Equal(t, "cli", resp.Name)

		// Listing never exposes the plaintext again.
		req := httptest.NewRequest(http.MethodGet, "/api/v1/api-keys", nil)
		withToken(req)
		lw := httptest.NewRecorder()
		router.ServeHTTP(lw, req)
		require.Equal(t, http.StatusOK, lw.Code)
		assert.NotContains(t, lw.Body.String(), resp.Key)
	})

	t.Run("omitted permissions get the default scopes", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/api-keys",
			CreateAPIKeyRequest{Name: "default-scopes", ExpiresIn: "30d"},
			withToken)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp CreateAPIKeyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		keys, err := am.ListAPIKeys(user.ID)
		require.NoError(t, err)
		for _, k := range keys {
			if k.ID == resp.ID {
				assert.ElementsMatch(t, DefaultKeyPermissions, k.Permissions)
				return
			}
		}
		t.Fatal("created key not found in listing")
	})

	t.Run("rejects bad expiry", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/api-keys",
			CreateAPIKeyRequest{Name: "cli", ExpiresIn: "sometime"},
			withToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid expiry duration")
	})

	t.Run("requires authentication", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/api-keys",
			CreateAPIKeyRequest{Name: "cli", ExpiresIn: "30d"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRevokeAPIKeyEndpoint(t *testing.T) {
	am, router := newHandlerFixture(t)

	user, err := am.CreateUser("analyst", "analyst@example.com", []string{"user"})
	require.NoError(t, err)
	token, err := am.CreateJWTToken(user)
	require.NoError(t, err)
	key, err := am.CreateAPIKey(user.ID, "cli", nil, testRateLimit, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/api-keys/"+key.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, _, err = am.ValidateAPIKey(key.Key)
	assert.Error(t, err, "revoked key must stop authenticating")

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/api-keys/no-such-id", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	am, router := newHandlerFixture(t)

	admin, err := am.GetUserByUsername("admin")
	require.NoError(t, err)
	adminToken, err := am.CreateJWTToken(admin)
	require.NoError(t, err)

	analyst, err := am.CreateUser("analyst", "analyst@example.com", []string{"user"})
	require.NoError(t, err)
	analystToken, err := am.CreateJWTToken(analyst)
	require.NoError(t, err)

	t.Run("admin creates a user", func(t *testing.T) {
		w := postJSON(t, router, "/api/v1/admin/users",
			CreateUserRequest{Username: "newbie", Email: "newbie@example.com"},
			func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+adminToken) })

		require.Equal(t, http.StatusCreated, w.Code)
		created, err := am.GetUserByUsername("newbie")
		require.NoError(t, err)
		assert.Equal(t, []string{"user"}, created.Roles, "role defaults to user when omitted")
	})

	t.Run("admin lists users", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "analyst")
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+analystToken)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("rate limit stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/rate-limit-stats", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "total_clients")
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 2 * 7 * 24 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"720h", 720 * time.Hour, false},
		{"", 30 * 24 * time.Hour, false},
		{"sometime", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
