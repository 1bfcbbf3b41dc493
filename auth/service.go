package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BaSui01/img3d/config"
)

const (
	minPasswordLen = 6
	// bcrypt 只处理前 72 字节
	maxPasswordLen = 72
)

var (
	// ErrInvalidCredentials 邮箱或密码错误
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	// ErrInvalidInput 注册参数不合法
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidToken 会话令牌无效或已过期
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims 会话令牌载荷
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Session 登录成功后返回给客户端的会话
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// RegisterInput 注册参数
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthProfile 第三方登录返回的用户资料
type OAuthProfile struct {
	Provider string
	Email    string
	Name     string
	Image    string
}

// Service 账号注册、登录与会话令牌
type Service struct {
	repo       Repository
	secret     []byte
	issuer     string
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
	logger     *zap.Logger

	// 用户不存在时也执行一次比对，避免通过耗时探测邮箱是否注册
	dummyHash []byte
}

// NewService 创建认证服务
func NewService(repo Repository, cfg config.AuthConfig, logger *zap.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("auth: repository is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth: jwt secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	s := &Service{
		repo:       repo,
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "auth")),
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("img3d-placeholder"), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: init: %w", err)
	}
	s.dummyHash = hash
	return s, nil
}

// SessionTTL 会话有效期
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// =============================================================================
// 🎯 账号
// =============================================================================

// Register 使用邮箱密码注册
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if n := len(in.Password); n < minPasswordLen || n > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultName(email)
	}
	u := &User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Provider:     ProviderCredentials,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Authenticate 校验邮箱密码，成功后签发会话
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, u)
}

// SignInOAuth 按邮箱创建或更新第三方登录用户，并签发会话。
// 已存在的密码账号保留密码，仅补全头像与名称。
func (s *Service) SignInOAuth(ctx context.Context, p OAuthProfile) (*Session, error) {
	u, err := s.UpsertOAuthUser(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, u)
}

// UpsertOAuthUser 按邮箱查找或创建第三方登录用户
func (s *Service) UpsertOAuthUser(ctx context.Context, p OAuthProfile) (*User, error) {
	email, err := validateEmail(p.Email)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = defaultName(email)
		}
		u = &User{Email: email, Name: name, Provider: p.Provider, Image: p.Image}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, err
		}
		s.logger.Info("oauth user created",
			zap.String("user_id", u.ID),
			zap.String("provider", p.Provider))
		return u, nil
	case err != nil:
		return nil, err
	}

	changed := false
	if u.Image == "" && p.Image != "" {
		u.Image = p.Image
		changed = true
	}
	if u.Name == "" && p.Name != "" {
		u.Name = p.Name
		changed = true
	}
	if changed {
		if err := s.repo.Update(ctx, u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// UserByID 查询用户
func (s *Service) UserByID(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// SeedAdmin 启动时创建管理员账号，已存在则跳过
func (s *Service) SeedAdmin(ctx context.Context, cfg config.AuthConfig) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	if _, err := s.repo.FindByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if cfg.AdminPassword == "" {
		return fmt.Errorf("%w: admin password is required when admin email is set", ErrInvalidInput)
	}

	u, err := s.Register(ctx, RegisterInput{
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
	})
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info("admin user seeded", zap.String("user_id", u.ID))
	return nil
}

// =============================================================================
// 🔑 会话令牌
// =============================================================================

// IssueToken 为用户签发 HS256 会话令牌
func (s *Service) IssueToken(u *User) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: expiresAt, User: u}, nil
}

// ParseToken 校验签名、算法、签发者与有效期
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) startSession(ctx context.Context, u *User) (*Session, error) {
	now := s.now()
	if err := s.repo.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record login time", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		u.LastLoginAt = &now
	}
	return s.IssueToken(u)
}

func validateEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}

func defaultName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
