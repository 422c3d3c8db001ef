// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package eventqueue 把推送式事件源转换为拉取序列。

Bridge 同时是 Sink（事件源向它推送）、stream.Iterator（消费者逐个取）和
stream.Source（host 可以把事件直接泵过通道）。

  - Continue 先满足最早的等待者，否则缓冲
  - Break 正常结束；缓冲中的事件仍会先交付
  - Throw 以错误结束，等待中的 Next 收到该错误
  - Return 丢弃缓冲并停止事件源，是唯一的退订路径

完成后到达的事件作为协议违规记录并丢弃，WithDiscard 可以处置这些事件
（例如关闭已接受的连接）。

# Socket 适配器

ListenerSource、PacketSource、ConnSource 分别推送接受的连接、数据报和
连接上读到的字节块，读缓冲来自 internal/pool 的 BufferPool。
*/
package eventqueue
