// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 streambridge 网关的 HTTP 处理器。

# 概述

handlers 把 consumer 端的代理流渲染为分块 HTTP 响应，并提供健康检查、
统一的 JSON 响应与错误映射。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - StreamHandler  — GET/POST /v1/streams，逐块转发远端流，终止状态写入 X-Stream-Status trailer
  - HealthHandler  — /health、/healthz、/ready、/version
  - Response       — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo      — 结构化错误信息，含 code、message、stream_id、retryable
  - ResponseWriter — 包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 流在首个分块前结束时按 end 状态返回 404/502/503/504
  - 客户端断开后通过 Return 通知 host 取消
  - ErrorCode → HTTP 状态码自动映射
  - 可扩展健康检查：RegisterCheck 注册 Redis 等 HealthCheck 实现
*/
package handlers
