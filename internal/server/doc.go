// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
阻塞运行与优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
host 的 WebSocket 端点、gateway 的流端点和 metrics 端点各用一个 Manager，
由 errgroup 通过 Run(ctx) 并行运行。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown/RegisterOnShutdown 等生命周期方法。
  - Config：监听地址、请求头超时、写超时、空闲超时、
    最大请求头大小与优雅关闭超时。流式端点的写超时为 0。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 结束时优雅关闭，异常退出时返回错误。
  - 劫持连接：RegisterOnShutdown 通知 WebSocket 连接收尾。
  - 状态查询：IsRunning/Addr/ListenAddr。
*/
package server
