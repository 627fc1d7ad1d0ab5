// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VisionFlow worker 的程序入口。

# 概述

cmd/visionflow 启动视觉语音助手 worker：单个 HTTP 监听同时提供
房间 WebSocket（/rooms/{room}/ws）、健康检查（/healthz、/readyz）
与 Prometheus 指标（/metrics）。配置按 .env → 默认值 → YAML → 环境变量
的顺序加载。

# 核心类型

  - App — 组装遥测、指标、Redis 快照、制品索引、Gemini 模型与房间 Worker

# 主要能力

  - 子命令：serve（启动 worker）、token（签发加入令牌）、health、version
  - 按房间创建会话：每个会话拥有独立的抓取限流器
  - 优雅关闭：信号 → 停止 HTTP → 断开所有房间 → 关闭后端
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
