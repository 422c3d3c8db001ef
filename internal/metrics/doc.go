// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的桥接指标采集能力，覆盖
流生命周期、消息收发、生产者拉取与 HTTP 网关四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
注册到调用方提供的 Registerer（测试中使用独立 Registry）。所有指标按
namespace 隔离，按 side（host/consumer/eventqueue）分组。

# 核心类型

  - Collector：指标收集器；nil Collector 上的记录方法均为空操作，
    便于在不需要指标的组件和测试中省略。

# 主要能力

  - 流指标：streams_opened_total、streams_finished_total{status}、
    active_streams Gauge。
  - 消息指标：messages_total{direction,type}，
    protocol_violations_total{kind}（迟到、未知 ID、协议违规）。
  - 生产者指标：pump_fetch_duration_seconds 直方图。
  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
*/
package metrics
