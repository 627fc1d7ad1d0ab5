// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 worker 唯一的 HTTP 监听器，房间 WebSocket、健康检查
与 Prometheus 指标共用同一端口。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、阻塞式 Run
    与幂等 Shutdown。配置了证书与密钥时自动启用 TLS。
  - Config：监听地址、请求头超时、空闲超时与优雅关闭超时。
    WriteTimeout 默认为零，避免切断长连接的房间会话。
  - Routes / NewHandler：挂载 /healthz、/readyz、/metrics 与
    GET /rooms/{room}/ws，并套上 Recovery、RequestLogger、Metrics
    中间件。

# 中间件

statusRecorder 记录响应状态码，同时透传 Hijack 与 Flush，
WebSocket 升级可以穿过整条中间件链。指标路径经 normalizePath
归一化，房间名折叠为 :room。
*/
package server
