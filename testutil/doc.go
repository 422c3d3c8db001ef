// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 streambridge 测试的共享工具和辅助函数。

# 概述

testutil 包为 host、consumer、eventqueue、api 等包的单元测试提供统一的
辅助能力，避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 通道辅助: Pipe / Recv / RecvUntilEnd / Send / AssertSilent / Bodies，
    在内存通道上直接观察线上消息
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor，
    支持超时轮询等待条件满足

# 子包

  - testutil/mocks: MockSource（拉取式数据源），支持逐步投喂、
    错误注入与在途拉取观测

# 使用示例

	hostEnd, consumerEnd := testutil.Pipe(t)
	src := mocks.NewMockSourceOf("a", "b")
	require.NoError(t, conn.Start(ctx, "r1", src))
	msgs := testutil.RecvUntilEnd(t, consumerEnd, "r1")
*/
package testutil
