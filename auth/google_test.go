package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/BaSui01/img3d/config"
)

func newFakeGoogle(t *testing.T, info googleUserInfo) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(t *testing.T, srv *httptest.Server) *GoogleProvider {
	t.Helper()
	g := NewGoogleProvider(config.AuthConfig{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURL:  "http://localhost:8080/api/auth/google/callback",
	})
	require.NotNil(t, g)
	g.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestNewGoogleProvider_DisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewGoogleProvider(config.AuthConfig{GoogleClientID: "only-id"}))
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	g := NewGoogleProvider(config.AuthConfig{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURL:  "http://localhost/cb",
	})
	state := NewState()
	raw := g.AuthCodeURL(state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := newFakeGoogle(t, googleUserInfo{
		Email:         "jo@example.com",
		EmailVerified: true,
		Name:          "Jo",
		Picture:       "https://img.example.com/jo.png",
	})
	g := newTestGoogle(t, srv)

	profile, err := g.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &OAuthProfile{
		Provider: ProviderGoogle,
		Email:    "jo@example.com",
		Name:     "Jo",
		Image:    "https://img.example.com/jo.png",
	}, profile)
}

func TestGoogleProvider_ExchangeErrors(t *testing.T) {
	srv := newFakeGoogle(t, googleUserInfo{Email: "kim@example.com"})
	g := newTestGoogle(t, srv)
	ctx := context.Background()

	_, err := g.Exchange(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = g.Exchange(ctx, "bad-code")
	assert.Error(t, err)

	_, err = g.Exchange(ctx, "good-code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}
