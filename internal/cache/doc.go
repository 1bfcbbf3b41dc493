// 版权所有 2024 img3d Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于缓存已进入终态的
转换任务快照。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括
初始化、健康检查与优雅关闭；TaskStore 在其上按任务 ID 存取
终态快照，供状态查询接口直接返回，避免重复访问上游。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 与
    GetJSON/SetJSON 便捷序列化方法，所有键带统一前缀。
  - Config：地址、密码、键前缀、连接池大小、默认 TTL 与健康检查间隔。
  - TaskStore：终态任务快照缓存，非终态快照不会写入。
  - HitRecorder：命中/未命中回调，由 metrics.Collector 实现。

# 错误语义

ErrCacheMiss 表示未命中，ErrClosed 表示管理器已关闭。
*/
package cache
