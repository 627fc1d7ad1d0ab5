// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、图片接收、
URL 抓取与会话回复几个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 的记录方法对 nil 接收者安全，未启用指标时可直接传 nil。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组。
  - 图片指标：进入对话的图片数与大小（source=stream|url），
    失败的入站流按原因计数。
  - 抓取指标：按状态类别（2xx/4xx/5xx/timeout/error）计数，抓取耗时。
  - 会话指标：上下文更新结果、回复数与耗时（按 kind 分组）、
    运行中任务数、活跃房间数与在线参与者数。
*/
package metrics
