// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 visionflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、config
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ContentPart — 对话消息与多模态内容（文本、内联图片）
  - ImageContent          — data URI 形式的图片载荷（含 MIME 类型）
  - Error / ErrorCode     — 结构化错误体系，含 Retryable、Cause 链

# 主要能力

  - Context 传播：WithTraceID / WithSessionID / WithRoomName / WithParticipant
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
