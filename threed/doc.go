// 版权所有 2024 img3d Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 threed 提供图像转 3D 的任务模型与上游适配器。

# 概述

本包为 tracker 屏蔽 Meshy API 协议细节，对外暴露统一的任务快照模型
ConversionTask 以及两种 Gateway 实现：

  - MeshyProvider：直接调用 Meshy openapi/v1 image-to-3d 接口。
  - HTTPGateway：调用本服务的 /api/convert-to-3d 与 /api/check-status 代理接口，
    供 CLI 与其他进程内客户端使用。

# 核心类型

  - ConversionTask：一次转换任务的完整快照（状态、进度、模型/缩略图/贴图 URL）。
  - Status：PENDING / IN_PROGRESS / SUCCEEDED / FAILED，ParseStatus 负责归一化上游值。
  - EncodeImage：将原始图像字节编码为 data URL（提交接口的传输格式）。

# 错误约定

上游非 2xx 响应统一转换为 *types.Error（UPSTREAM_ERROR），5xx 与 429 标记为可重试；
传输层错误同样可重试。tracker 据此决定是否做有界重试。
*/
package threed
