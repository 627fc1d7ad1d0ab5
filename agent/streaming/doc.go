// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 定义房间连接上的帧协议及其 WebSocket 传输。

# 概述

客户端与 worker 之间每条 WebSocket 文本消息都是一个 JSON Frame。
字节流子协议由 header、若干 chunk 和 trailer 组成，同一连接上
多个流可以交错发送；chunk 的 data 字段以 base64 编码。

# 核心类型

  - Frame / FrameType：帧定义，Validate 按类型检查必填字段
  - StreamFrames：把一段数据切分为 header + chunks + trailer
  - FrameConnection：帧级连接抽象，定义 ReadFrame / WriteFrame /
    Close / IsAlive
  - WebSocketFrameConnection：基于 coder/websocket 的实现，写操作
    通过 mutex 串行化，Close 幂等
  - Demux：把单个参与者的字节流帧还原为 bytestream.PendingStream，
    并交给按 topic 注册的处理器

# 与其他包协同

  - agent/bytestream：Demux 产出的流由 Registry 分发
  - agent/room：房间处理器使用 FrameConnection 与 Demux 驱动读循环
*/
package streaming
