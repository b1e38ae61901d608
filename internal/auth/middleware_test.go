package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserFetcher struct {
	user *models.User
	err  error
}

func (s *stubUserFetcher) GetByID(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)
	user := &models.User{ID: "user1", Username: "alice"}

	token, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)

	hit := false
	handler := RequireAuth(tm, &stubUserFetcher{user: user})(okHandler(&hit))

	r := httptest.NewRequest("GET", "/account", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_MissingOrMalformedHeader(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)
	hit := false
	handler := RequireAuth(tm, nil)(okHandler(&hit))

	for _, header := range []string{"", "Bearer", "Basic abc", "garbage"} {
		r := httptest.NewRequest("GET", "/account", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.False(t, hit)
	}
}

func TestRequireAuth_TamperedToken(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)
	other := NewTokenManager("another-secret-32-characters-ok!", time.Hour)

	token, err := other.GenerateAccessToken(&models.User{ID: "user1"})
	require.NoError(t, err)

	hit := false
	handler := RequireAuth(tm, nil)(okHandler(&hit))

	r := httptest.NewRequest("GET", "/account", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, hit)
}

func TestRequireAuth_RejectsTokenIssuedBeforePasswordChange(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)
	user := &models.User{ID: "user1", Username: "alice"}

	token, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)

	changed := time.Now().Add(time.Minute)
	user.PasswordChangedAt = &changed

	hit := false
	handler := RequireAuth(tm, &stubUserFetcher{user: user})(okHandler(&hit))

	r := httptest.NewRequest("GET", "/account", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, hit)
}

func TestRequireAdmin(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)
	admin := &models.User{ID: "admin1", Username: "root", RootAdmin: true}
	regular := &models.User{ID: "user1", Username: "alice"}

	tests := []struct {
		name     string
		fetcher  *stubUserFetcher
		user     *models.User
		wantCode int
	}{
		{"admin allowed", &stubUserFetcher{user: admin}, admin, http.StatusOK},
		{"regular forbidden", &stubUserFetcher{user: regular}, regular, http.StatusForbidden},
		{"deleted user", &stubUserFetcher{err: models.ErrNotFound}, regular, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tm.GenerateAccessToken(tt.user)
			require.NoError(t, err)

			hit := false
			handler := RequireAuth(tm, tt.fetcher)(RequireAdmin(tt.fetcher)(okHandler(&hit)))

			r := httptest.NewRequest("GET", "/admin/users", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long!", time.Hour)

	token, err := tm.GenerateAccessToken(&models.User{ID: "user1", Username: "alice", RootAdmin: true})
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "user1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.RootAdmin)
	assert.NotEmpty(t, claims.ID)
}
