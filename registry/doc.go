// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 registry 提供按关联 ID 索引的流条目注册表。

# 概述

每个通道端持有一个 Registry。条目存放在注册表自有的槽位切片（arena）中，
对外发放 {index, generation} 形式的 Handle；槽位释放后复用时 generation
递增，过期 Handle 不会解析到新条目。

# 主要能力

  - Register / Lookup / Get / Unregister：同一 ID 同一时刻最多一个活跃条目
  - Unregister 幂等，条目实现 Releaser 时恰好释放一次
  - Retired：有界 FIFO 记住最近退役的 ID，用于区分"迟到消息"与"未知 ID"
  - Close：释放全部条目并拒绝后续注册
*/
package registry
