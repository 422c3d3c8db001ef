// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 wire 定义跨上下文消息通道上传输的消息结构与 JSON 编解码。

# 概述

host 与 consumer 之间只通过离散、异步、序列化的消息通信。每条消息都带有
requestId（关联 ID），按 type 区分为数据消息（head/body/end，host -> consumer）
与控制消息（pull/cancel/pause/resume/request，consumer -> host）。

# 核心类型

  - Message：单条消息，仅与 Type 对应的字段有意义
  - Head / Request：head 元数据与 request 载荷
  - Type：消息类型标签，IsData / IsControl 表示方向

# 主要能力

  - Encode / Decode：校验后编码/解码，每种类型只输出自身字段，
    body 内容以 base64 编码
  - 终止状态码：StatusNormal ~ StatusTimeout，StatusText 用于日志与指标 label
*/
package wire
