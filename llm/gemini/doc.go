// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 gemini 通过 Google Gemini generateContent REST 接口实现 llm.Generator。

# 请求转换

  - system 角色消息与 Instructions 合并为 systemInstruction
  - assistant 角色映射为 model
  - 图片片段以 inlineData（MIME + base64）发送；非 data URI 的图片
    以 fileData 引用
  - TurnInstruction 追加到 systemInstruction；当上下文为空时作为首条
    user 内容发送

# 错误映射

HTTP 4xx/5xx 通过 llm.MapHTTPError 转换为 types.Error，空回复返回
EMPTY_MODEL_OUTPUT。
*/
package gemini
