/*
Package session 定义智能体驱动的会话与房间接口，并提供基于 llm.Generator
的具体实现 AgentSession。

AgentSession 持有权威的对话上下文（chatctx.Holder）。UpdateChatCtx 整体
替换上下文，MutateChatCtx 在副本上修改后原子提交；每次提交后可选地把快照
写入 SnapshotStore。GenerateReply 串行执行：把上下文与单轮指令发送给模型，
将回复作为 assistant 消息写回上下文，再交给 ReplySink 投递到房间。

最终的用户语音文本由传输层通过 HandleUserInput 送入：先写入上下文，再按
登记顺序同步通知 OnUserInput 监听者；开启 AutoReply 时在后台生成本轮回复。
*/
package session
