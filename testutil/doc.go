// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 visionflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / CountImageMessages
  - 异步断言: AssertEventuallyTrue，超时轮询等待条件满足

# 子包

  - testutil/mocks: MockGenerator（llm.Generator）、RecordingSink（回复
    接收端）、FakeRoom（内存房间，可直接推送字节流）、
    MemorySnapshotStore（上下文快照）
  - testutil/fixtures: PNG / JPEG / GIF 样本与分块工具
*/
package testutil
