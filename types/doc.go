// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 streambridge 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 registry、host、consumer、
eventqueue、api 等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 StreamID、HTTP 状态码、Retryable 标记

# 主要能力

  - 错误工具链：GetErrorCode / IsCode / IsRetryable（均支持 errors.As 解包）
  - 常用错误构造：NotFound / AlreadyRegistered / ProtocolViolation
  - 错误分类：NOT_FOUND、LATE_MESSAGE、PROTOCOL_VIOLATION、PRODUCER_FAILURE、
    TRANSPORT_FAILURE 等，全部在流边界内被吸收，不会扩散到其他流
*/
package types
