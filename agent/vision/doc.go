// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 vision 实现带视觉能力的语音助手：把用户通过字节流发送的图片、
或在语音中提到的图片 URL，拼接进会话上下文，再触发模型回复。

# 流程

  - OnEnter：在房间登记图片字节流主题（默认 "test"），订阅用户
    语句事件，并以导师指令发送开场问候。
  - 字节流：每个流一个后台任务，按到达顺序拼接分块，落盘为
    received_image_<participant>_<unix>.png，再追加为一条用户图片消息。
    拼接或上下文失败只记日志，不回复。
  - URL：检测器命中后调度抓取任务；成功则落盘为
    fetched_image_<unix>.png、追加图片并请求确认回复；任何失败都请求
    道歉回复，上下文保持不变。

# 并发

后台任务由每个会话独立的 tasks.Group 管理，Close 取消并等待全部任务。
上下文更新通过 session.MutateChatCtx 克隆后整体替换，并发流各自
追加一条消息，互不混杂。

# 可观测性

Span：vision.ingest、vision.fetch、vision.update_context。
指标经 metrics.Collector 记录图片来源、抓取状态、上下文更新与回复结果。
*/
package vision
