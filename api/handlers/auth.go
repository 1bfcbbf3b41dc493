package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/img3d/auth"
	"github.com/BaSui01/img3d/types"
)

const oauthStateCookie = "img3d_oauth_state"

// AuthService 账号与会话操作
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.Session, error)
	SignInOAuth(ctx context.Context, p auth.OAuthProfile) (*auth.Session, error)
	UserByID(ctx context.Context, id string) (*auth.User, error)
}

// OAuthProvider 第三方登录
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.OAuthProfile, error)
}

// AuthRecorder 记录认证尝试
type AuthRecorder interface {
	RecordAuthAttempt(method string, ok bool)
}

// LoginRequest 登录请求体
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// =============================================================================
// 🔐 认证 Handler
// =============================================================================

// AuthHandler 注册、登录与 Google 登录
type AuthHandler struct {
	svc      AuthService
	google   OAuthProvider
	recorder AuthRecorder
	logger   *zap.Logger
}

// NewAuthHandler 创建认证处理器。google 为 nil 时 Google 登录接口返回 404。
func NewAuthHandler(svc AuthService, google OAuthProvider, recorder AuthRecorder, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		svc:      svc,
		google:   google,
		recorder: recorder,
		logger:   logger.With(zap.String("handler", "auth")),
	}
}

// HandleRegister 处理 POST /api/auth/register
// 成功返回 201 {"message": "..."}，失败返回 {"error": "..."}。
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil {
		writeProxyError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.svc.Register(r.Context(), in)
	h.recordAttempt("register", err == nil)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidInput):
		writeProxyError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrUserExists):
		writeProxyError(w, http.StatusConflict, "Email is already registered")
		return
	default:
		h.logger.Error("registration failed", zap.Error(err))
		writeProxyError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    u,
	})
}

// HandleLogin 处理 POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	sess, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	h.recordAttempt(auth.ProviderCredentials, err == nil)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "invalid email or password", h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInternalError, "login failed").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, sess)
}

// HandleMe 处理 GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	u, err := h.svc.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			WriteError(w, types.NewNotFoundError("user not found"), h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInternalError, "failed to load user").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, u)
}

// HandleGoogleLogin 处理 GET /api/auth/google/login，跳转到 Google 授权页
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		WriteError(w, types.NewNotFoundError("google sign-in is not configured"), h.logger)
		return
	}
	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// HandleGoogleCallback 处理 GET /api/auth/google/callback
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		WriteError(w, types.NewNotFoundError("google sign-in is not configured"), h.logger)
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		h.recordAttempt(auth.ProviderGoogle, false)
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "google sign-in was denied: "+reason, h.logger)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		h.recordAttempt(auth.ProviderGoogle, false)
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid oauth state", h.logger)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
	})

	profile, err := h.google.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.recordAttempt(auth.ProviderGoogle, false)
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			WriteError(w, types.NewInvalidRequestError("missing authorization code").WithCause(err), h.logger)
		case errors.Is(err, auth.ErrEmailNotVerified):
			WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden, "google account email is not verified", h.logger)
		default:
			WriteError(w, types.NewError(types.ErrUpstreamError, "google sign-in failed").
				WithHTTPStatus(http.StatusBadGateway).
				WithCause(err), h.logger)
		}
		return
	}

	sess, err := h.svc.SignInOAuth(r.Context(), *profile)
	h.recordAttempt(auth.ProviderGoogle, err == nil)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "google sign-in failed").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, sess)
}

func (h *AuthHandler) recordAttempt(method string, ok bool) {
	if h.recorder != nil {
		h.recorder.RecordAuthAttempt(method, ok)
	}
}
