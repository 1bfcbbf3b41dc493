// 版权所有 2024 img3d Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、图像转换、认证、缓存与数据库五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，同时实现 tracker.Observer，
    由 tracker 在转换生命周期的各个节点回调。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 转换指标：活跃转换数、提交与轮询次数（success/error）、
    按结束原因统计的转换总数与耗时、代理接口上游调用数。
  - 认证指标：按 credentials/google/register 与结果统计。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
