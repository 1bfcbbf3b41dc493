// Copyright (c) img3d Authors.
// Licensed under the MIT License.

/*
Package types 提供 img3d 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 threed、tracker、auth、
api 等上层模块提供统一的错误契约与 context 传播工具，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - 转换错误码：ENCODING_FAILED / SUBMISSION_FAILED / POLL_FAILED / CONVERSION_FAILED

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithUserID / WithUserEmail
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewInvalidRequestError / NewNotFoundError / NewUpstreamError
*/
package types
