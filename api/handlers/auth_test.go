package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/img3d/auth"
	"github.com/BaSui01/img3d/config"
	"github.com/BaSui01/img3d/types"
)

// =============================================================================
// 🧪 测试桩
// =============================================================================

type fakeOAuth struct {
	profile *auth.OAuthProfile
	err     error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*auth.OAuthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if code == "" {
		return nil, auth.ErrInvalidInput
	}
	return f.profile, nil
}

type fakeAuthRecorder struct {
	mu       sync.Mutex
	attempts map[string][]bool
}

func (r *fakeAuthRecorder) RecordAuthAttempt(method string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempts == nil {
		r.attempts = make(map[string][]bool)
	}
	r.attempts[method] = append(r.attempts[method], ok)
}

func newTestAuthService(t *testing.T) *auth.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := auth.NewGormRepository(db)
	require.NoError(t, repo.AutoMigrate())
	svc, err := auth.NewService(repo, config.AuthConfig{
		JWTSecret:  "handler-secret",
		Issuer:     "img3d",
		SessionTTL: time.Hour,
	}, nil)
	require.NoError(t, err)
	return svc
}

func newAuthMux(h *AuthHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", h.HandleLogin)
	mux.HandleFunc("GET /api/auth/me", h.HandleMe)
	mux.HandleFunc("GET /api/auth/google/login", h.HandleGoogleLogin)
	mux.HandleFunc("GET /api/auth/google/callback", h.HandleGoogleCallback)
	return mux
}

type sessionResponse struct {
	Success bool         `json:"success"`
	Data    auth.Session `json:"data"`
	Error   *ErrorInfo   `json:"error"`
}

func postJSON(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(w, r)
	return w
}

// =============================================================================
// 🧪 AuthHandler 测试
// =============================================================================

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	svc := newTestAuthService(t)
	rec := &fakeAuthRecorder{}
	mux := newAuthMux(NewAuthHandler(svc, nil, rec, nil))

	w := postJSON(mux, "/api/auth/register", `{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var reg map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reg))
	assert.Equal(t, "User registered successfully", reg["message"])
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = postJSON(mux, "/api/auth/login", `{"email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var login sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&login))
	require.True(t, login.Success)
	assert.NotEmpty(t, login.Data.Token)
	require.NotNil(t, login.Data.User)

	claims, err := svc.ParseToken(login.Data.Token)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	mux.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), claims.UserID)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"alice@example.com"`)

	assert.Equal(t, []bool{true}, rec.attempts["register"])
	assert.Equal(t, []bool{true}, rec.attempts[auth.ProviderCredentials])
}

func TestAuthHandler_RegisterErrors(t *testing.T) {
	svc := newTestAuthService(t)
	mux := newAuthMux(NewAuthHandler(svc, nil, nil, nil))

	require.Equal(t, http.StatusCreated,
		postJSON(mux, "/api/auth/register", `{"email":"bob@example.com","password":"secret123"}`).Code)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"duplicate", `{"email":"BOB@example.com","password":"secret123"}`, http.StatusConflict},
		{"bad email", `{"email":"bob","password":"secret123"}`, http.StatusBadRequest},
		{"short password", `{"email":"new@example.com","password":"1"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(mux, "/api/auth/register", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, decodeProxyError(t, w))
		})
	}
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	svc := newTestAuthService(t)
	rec := &fakeAuthRecorder{}
	mux := newAuthMux(NewAuthHandler(svc, nil, rec, nil))

	w := postJSON(mux, "/api/auth/login", `{"email":"ghost@example.com","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrAuthentication), resp.Error.Code)

	w = postJSON(mux, "/api/auth/login", `{"email":"a@b.c","password":"x","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []bool{false}, rec.attempts[auth.ProviderCredentials])
}

func TestAuthHandler_MeRequiresUser(t *testing.T) {
	mux := newAuthMux(NewAuthHandler(newTestAuthService(t), nil, nil, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	mux.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), "deleted-user")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthHandler_GoogleDisabled(t *testing.T) {
	mux := newAuthMux(NewAuthHandler(newTestAuthService(t), nil, nil, nil))
	for _, path := range []string{"/api/auth/google/login", "/api/auth/google/callback"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestAuthHandler_GoogleFlow(t *testing.T) {
	svc := newTestAuthService(t)
	google := &fakeOAuth{profile: &auth.OAuthProfile{
		Provider: auth.ProviderGoogle,
		Email:    "gwen@example.com",
		Name:     "Gwen",
		Image:    "https://img.example.com/gwen.png",
	}}
	rec := &fakeAuthRecorder{}
	mux := newAuthMux(NewAuthHandler(svc, google, rec, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)
	assert.Equal(t, state, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	t.Run("state mismatch", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=c&state=forged", nil)
		r.AddCookie(cookies[0])
		mux.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("consent denied", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?error=access_denied", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=good&state="+url.QueryEscape(state), nil)
		r.AddCookie(cookies[0])
		mux.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)

		var resp sessionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.NotNil(t, resp.Data.User)
		assert.Equal(t, "gwen@example.com", resp.Data.User.Email)
		assert.Equal(t, auth.ProviderGoogle, resp.Data.User.Provider)

		claims, err := svc.ParseToken(resp.Data.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.Data.User.ID, claims.UserID)
	})

	assert.Equal(t, []bool{false, false, true}, rec.attempts[auth.ProviderGoogle])
}

func TestAuthHandler_GoogleExchangeErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unverified email", auth.ErrEmailNotVerified, http.StatusForbidden},
		{"provider down", errors.New("dial tcp: connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newAuthMux(NewAuthHandler(newTestAuthService(t), &fakeOAuth{err: tt.err}, nil, nil))
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=c&state=s", nil)
			r.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
			mux.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestGalleryHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewGalleryHandler(nil).HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool          `json:"success"`
		Data    []GalleryItem `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, DefaultGallery, resp.Data)
}
