/*
Package llm 定义 worker 与多模态模型之间的接口。

Generator 接收对话上下文（含内联图片片段）与可选的单轮指令，返回一条
助手回复文本。TurnInstruction 只影响本次回复，不写入对话上下文。
具体实现见 llm/gemini。MapHTTPError 把上游 HTTP 状态码映射为带重试
标记的 types.Error。
*/
package llm
