/*
Package main 提供 img3d 服务端程序入口。

# 概述

cmd/img3d 是图像转 3D 服务的可执行入口，提供 HTTP API 服务、命令行转换、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件与
IMG3D_ 前缀环境变量、结构化日志（zap）、Prometheus 指标与 OpenTelemetry 追踪。

# 核心类型

  - Server：主服务器，持有数据库、缓存、tracker 注册表与 API、Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - TokenVerifier：JWTAuth 使用的会话令牌校验接口，由 auth.Service 实现

# 主要能力

  - 子命令：serve、convert（--server 经代理或 --direct 直连上游）、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、MetricsMiddleware、
    OTelTracing、CORS、RateLimiter（基于 IP）、JWTAuth（Bearer 头或 access_token 参数）
  - 优雅关闭：关闭 tracker 注册表后依次关闭 HTTP、Metrics、Redis、数据库与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
