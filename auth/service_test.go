package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BaSui01/img3d/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:  "test-secret",
		Issuer:     "img3d-test",
		SessionTTL: time.Hour,
	}
}

func newTestService(t *testing.T) (*Service, *GormRepository) {
	t.Helper()
	repo := newTestRepo(t)
	svc, err := NewService(repo, testAuthConfig(), zap.NewNop())
	require.NoError(t, err)
	svc.bcryptCost = bcrypt.MinCost
	return svc, repo
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, testAuthConfig(), nil)
	assert.Error(t, err)

	cfg := testAuthConfig()
	cfg.JWTSecret = ""
	_, err = NewService(newTestRepo(t), cfg, nil)
	assert.Error(t, err)

	cfg = testAuthConfig()
	cfg.SessionTTL = 0
	svc, err := NewService(newTestRepo(t), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, svc.SessionTTL())
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "Alice@Example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "secret123", u.PasswordHash)

	sess, err := svc.Authenticate(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.NotNil(t, sess.User.LastLoginAt)

	claims, err := svc.ParseToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "img3d-test", claims.Issuer)
}

func TestService_RegisterRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing email", RegisterInput{Password: "secret123"}},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "secret123"}},
		{"display name form", RegisterInput{Email: "Bob <bob@example.com>", Password: "secret123"}},
		{"short password", RegisterInput{Email: "bob@example.com", Password: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Email: "DUP@example.com", Password: "other-pass"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestService_RegisterDefaultsName(t *testing.T) {
	svc, _ := newTestService(t)
	u, err := svc.Register(context.Background(), RegisterInput{Email: "dana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "dana", u.Name)
}

func TestService_AuthenticateFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "erin@example.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.UpsertOAuthUser(ctx, OAuthProfile{Provider: ProviderGoogle, Email: "g@example.com"})
	require.NoError(t, err)

	cases := map[string][2]string{
		"wrong password": {"erin@example.com", "wrong-pass"},
		"unknown user":   {"nobody@example.com", "secret123"},
		"empty password": {"erin@example.com", ""},
		"oauth user":     {"g@example.com", "anything"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, c[0], c[1])
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestService_UpsertOAuthUser(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.UpsertOAuthUser(ctx, OAuthProfile{
		Provider: ProviderGoogle,
		Email:    "Frank@Example.com",
		Image:    "https://img.example.com/f.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "frank", created.Name)
	assert.Equal(t, ProviderGoogle, created.Provider)
	assert.False(t, created.HasPassword())

	again, err := svc.UpsertOAuthUser(ctx, OAuthProfile{Provider: ProviderGoogle, Email: "frank@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	// 已有密码账号通过 Google 登录时保留密码并补全头像
	pw, err := svc.Register(ctx, RegisterInput{Email: "gina@example.com", Password: "secret123"})
	require.NoError(t, err)
	linked, err := svc.UpsertOAuthUser(ctx, OAuthProfile{
		Provider: ProviderGoogle,
		Email:    "gina@example.com",
		Image:    "https://img.example.com/g.png",
	})
	require.NoError(t, err)
	assert.Equal(t, pw.ID, linked.ID)

	stored, err := repo.FindByID(ctx, pw.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasPassword())
	assert.Equal(t, ProviderCredentials, stored.Provider)
	assert.Equal(t, "https://img.example.com/g.png", stored.Image)

	_, err = svc.UpsertOAuthUser(ctx, OAuthProfile{Provider: ProviderGoogle})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_SignInOAuth(t *testing.T) {
	svc, _ := newTestService(t)
	sess, err := svc.SignInOAuth(context.Background(), OAuthProfile{Provider: ProviderGoogle, Email: "hank@example.com", Name: "Hank"})
	require.NoError(t, err)
	claims, err := svc.ParseToken(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)
	assert.Equal(t, "Hank", claims.Name)
}

func TestService_ParseTokenRejects(t *testing.T) {
	svc, _ := newTestService(t)
	u := &User{ID: "u-1", Email: "ivy@example.com"}

	sess, err := svc.IssueToken(u)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.now = time.Now }()
		_, err := svc.ParseToken(sess.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewService(newTestRepo(t), config.AuthConfig{JWTSecret: "other", Issuer: "img3d-test"}, nil)
		require.NoError(t, err)
		_, err = other.ParseToken(sess.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewService(newTestRepo(t), config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else"}, nil)
		require.NoError(t, err)
		_, err = other.ParseToken(sess.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		claims := Claims{
			UserID: "u-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "img3d-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.ParseToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := Claims{UserID: "u-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "img3d-test"}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.ParseToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestService_SeedAdmin(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	cfg := testAuthConfig()
	require.NoError(t, svc.SeedAdmin(ctx, cfg), "no admin email configured")

	cfg.AdminEmail = "admin@example.com"
	assert.ErrorIs(t, svc.SeedAdmin(ctx, cfg), ErrInvalidInput)

	cfg.AdminPassword = "admin-pass"
	cfg.AdminName = "Administrator"
	require.NoError(t, svc.SeedAdmin(ctx, cfg))
	require.NoError(t, svc.SeedAdmin(ctx, cfg), "second seed is a no-op")

	admin, err := repo.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Administrator", admin.Name)

	_, err = svc.Authenticate(ctx, "admin@example.com", "admin-pass")
	assert.NoError(t, err)
}
