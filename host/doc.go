// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package host 实现通道的数据源一侧：持有本地拉取式数据源，并按 consumer
发来的控制消息推进每个流。

# 生命周期

每个流经过 ACTIVE → PAUSED → ACTIVE … → CLOSED | ABORTED。

  - Start 登记关联 ID 并启动 pump，可选先发送 head
  - pump 顺序拉取：任一时刻最多一个拉取在途；值以 body 发出，
    耗尽发送 end(0)，失败发送 end(2)
  - Suspend 之后不再开始新的拉取，已在途的值照常投递
  - Resume 重新启动 pump，已是 ACTIVE 时为空操作
  - Abort 取消在途拉取、释放数据源并发送 end，对已结束的流为空操作

end 一定是该 ID 的最后一条消息；流终止后从注册表移除，
ID 随即可以复用。

# 按需与限速

WithOnDemand 的流只在收到 pull 信用时拉取。Config.ChunksPerSecond 通过
golang.org/x/time/rate 限制 body 发送速率；Config.IdleTimeout 让长时间
暂停的流以 end(5) 中止。

# 协议处理器

Mux 按 URL scheme 路由 consumer 发来的 request 消息。未知 scheme 直接回复
end(3)；处理器返回错误或 panic 回复 end(2)。处理器返回前收到的 cancel
照常生效，之后返回的 body 会被关闭而不被拉取。

# 并发

Serve 是通道的唯一读取者；pump 可运行在 internal/pool 的有界 worker 池上，
池拒绝时流以 end(4) 中止。
*/
package host
