package api

// 兼容前端的代理路由
const (
	PathConvert     = "/api/convert-to-3d"
	PathCheckStatus = "/api/check-status/"
)

// 认证路由
const (
	PathRegister       = "/api/auth/register"
	PathLogin          = "/api/auth/login"
	PathMe             = "/api/auth/me"
	PathGoogleLogin    = "/api/auth/google/login"
	PathGoogleCallback = "/api/auth/google/callback"
)

// v1 路由
const (
	PathConversions       = "/api/v1/conversions"
	PathCurrentConversion = "/api/v1/conversions/current"
	PathConversionEvents  = "/api/v1/conversions/current/events"
	PathConversionWS      = "/api/v1/conversions/current/ws"
	PathGallery           = "/api/v1/gallery"
)

// 健康检查与版本
const (
	PathHealth  = "/health"
	PathHealthz = "/healthz"
	PathReady   = "/ready"
	PathReadyz  = "/readyz"
	PathVersion = "/version"
	PathMetrics = "/metrics"
)

// PublicPaths 不需要会话令牌的路由
var PublicPaths = []string{
	PathRegister,
	PathLogin,
	PathGoogleLogin,
	PathGoogleCallback,
	PathGallery,
	PathHealth,
	PathHealthz,
	PathReady,
	PathReadyz,
	PathVersion,
}
