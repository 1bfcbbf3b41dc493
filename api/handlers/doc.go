/*
Package handlers 提供 img3d HTTP API 的请求处理器。

# 核心类型

  - ProxyHandler：/api/convert-to-3d 与 /api/check-status 代理，
    同一任务的并发查询共享一次上游调用，终态快照走 Redis 缓存
  - ConversionHandler：调用者自己的 tracker，支持启动、查询、取消，SSE 与 WebSocket 状态流
  - AuthHandler：注册、登录、当前用户与 Google 登录
  - GalleryHandler：示例模型列表
  - HealthHandler：/health、/healthz、/ready 与 /version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）

代理路由与注册接口沿用前端约定的 {"error": "..."} 错误体，其余路由使用 Response。
服务关闭时调用 ConversionHandler.CloseStreams 结束长连接，避免阻塞优雅关闭。
*/
package handlers
