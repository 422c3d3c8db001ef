// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transport 提供 host 与 consumer 之间的消息通道实现。

# 概述

通道只负责投递离散的序列化消息，不理解流语义。所有实现都在发送前经
wire.Encode 编码、接收后经 wire.Decode 校验，内存实现也不例外，
保证测试与生产走同一条编解码路径。

# 核心类型

  - Channel：Send / Receive / Close 接口
  - NewPipe：进程内双端管道，用于测试与单进程部署
  - WebSocketChannel：基于 coder/websocket，每条消息一个文本帧
  - RedisChannel：基于 go-redis pub/sub，按 Role 区分收发主题

# 错误约定

  - 通道关闭后 Send / Receive 返回 ErrClosed
  - 底层读写失败返回 TRANSPORT_FAILURE
  - 无法解码的消息返回 INVALID_MESSAGE，调用方可记录后继续接收
*/
package transport
