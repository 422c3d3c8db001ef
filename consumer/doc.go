/*
Package consumer 实现通道的消费一侧：把远端 host 的流呈现为本地的惰性序列。

Client 是通道 consumer 端唯一的读取者与写入者。入站的 head/body/end 按关联 ID
分发给 Proxy；出站的 request/pull/cancel/pause/resume 进入有序 outbox，由单个
写协程发送，读协程从不因发送阻塞。

# Proxy

  - Next 先返回缓冲中的值（FIFO），否则挂起直到 body 或 end 到达
  - end 到达后剩余缓冲仍可读出，之后每次 Next 都返回完成；Status 给出终止码
  - Return 丢弃缓冲、向 host 发送 cancel 并立即注销，可重复调用
  - Head 等待 head；先到 body 或直接结束时返回 nil
  - Reader 把 body 暴露为 io.ReadCloser

生产者失败与取消对消费者而言都是带状态码的正常完成；只有通道本身失效时
Next 才返回 TRANSPORT_FAILURE 错误。

# 背压

缓冲达到 HighWaterMark 时发送 pause，读到 LowWaterMark 时发送 resume。
按需代理（WithOnDemand）在每次遇到空缓冲的 Next 时发送一个 pull。
*/
package consumer
