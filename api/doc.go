// Package api 定义 img3d HTTP API 的路由。
//
// # 路由概览
//
// 兼容前端的代理路由，错误响应体为 {"error": "..."}：
//
//	POST /api/convert-to-3d            {imageData} -> {result}
//	GET  /api/check-status/{taskId}    -> 任务快照
//
// 账号：
//
//	POST /api/auth/register            {name, email, password} -> 201
//	POST /api/auth/login               {email, password} -> {token, expires_at, user}
//	GET  /api/auth/me
//	GET  /api/auth/google/login        跳转到 Google 授权页
//	GET  /api/auth/google/callback
//
// 调用者自己的 tracker（统一响应 {success, data, error, timestamp}）：
//
//	POST   /api/v1/conversions                  multipart image 或 {imageData} -> 202
//	GET    /api/v1/conversions/current
//	DELETE /api/v1/conversions/current
//	GET    /api/v1/conversions/current/events   SSE
//	GET    /api/v1/conversions/current/ws       WebSocket
//	GET    /api/v1/gallery
//
// # 认证
//
// 除 PublicPaths 外的路由都需要会话令牌：
//
//	Authorization: Bearer <token>
//
// 浏览器的 EventSource 与 WebSocket 无法设置请求头，此时可用查询参数 access_token 传递令牌。
package api
