// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 streambridge 的程序入口。

# 概述

cmd/streambridge 以两种角色运行：host 在 WebSocket 端点（或 Redis 通道）
上为每个 consumer 连接运行一个 host.Connection，用内置协议处理器产生流；
gateway 连接 host，把 /v1/streams 请求渲染为分块 HTTP 响应。

# 核心类型

  - hostServer    — 管理 host 端连接、共享 pump 池与协议表
  - gatewayServer — 持有 consumer.Client 与 HTTP 流端点
  - Middleware    — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：host、gateway、version、health
  - 内置协议：text:、ticker:、tcp://、udp://
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、RateLimiter（基于 IP）
  - 配置文件变更时在线调整日志级别
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
