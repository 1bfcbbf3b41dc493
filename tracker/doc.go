/*
Package tracker 实现图像转 3D 的异步任务跟踪器。

# 概述

Tracker 拥有一次转换请求的完整生命周期：编码图像、调用提交接口获得任务 ID、
按固定间隔（默认 2 秒）轮询状态接口，并把进度、结果与错误以只读快照的形式
暴露给展示层（HTTP 快照、SSE、WebSocket、CLI）。

# 状态机

	PENDING ──▶ IN_PROGRESS ──▶ SUCCEEDED（终态）
	    │             │
	    └─────────────┴───────▶ FAILED（终态，Error = "Conversion failed"）

每次轮询结果整体替换 CurrentTask；状态只能前进，终态之后不再发起状态查询。

# 结束方式

  - 终态：SUCCEEDED 或 FAILED。
  - 提交失败：Error = "Failed to start conversion"，不会发起任何状态查询。
  - 状态查询失败：瞬时错误（传输错误、上游 5xx/429）按退避策略有界重试，
    耗尽或永久错误时 Error = "Failed to check status"。
  - 整体截止时间：Error = "Conversion timed out"。
  - Cancel / Handle.Cancel：停止循环，保留 CurrentTask 与 Error。
  - Close：取消并等待循环退出，用于确定性地丢弃 tracker。

# 并发约定

同一 tracker 同时只有一个活动循环。每次 ConvertImage 分配新的代数，
所有状态修改都在互斥锁内校验代数，被取代循环的迟到结果不会覆盖新状态。
Registry 为每个用户提供独立的 tracker 实例。
*/
package tracker
