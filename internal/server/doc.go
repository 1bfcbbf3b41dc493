/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。API 服务与 Prometheus 指标服务各持有
一个 Manager。

# 核心类型

  - Manager：封装 http.Server、net.Listener 与异步错误通道，
    提供 Start/StartTLS/Shutdown/WaitForShutdown/OnShutdown。
  - Config：服务名、监听地址、读写与空闲超时、最大请求头、关闭超时。

# 要点

  - StartTLS 使用 tlsutil.ServerTLSConfig（TLS 1.2+，AEAD 套件）。
  - OnShutdown 注册的回调在 Shutdown 开始时触发，用于结束 SSE 与
    WebSocket 长连接，避免关闭等待到超时。
  - Addr 在启动后返回实际监听地址，便于使用 :0 端口。
*/
package server
