/*
包 room 实现 WebSocket 房间：参与者加入、字节流分发与智能体会话的生命周期。

参与者通过 GET /rooms/{room}/ws 加入，携带 HS256 JWT 加入令牌
（查询参数 token 或 Authorization: Bearer）。令牌的 sub 是参与者身份，
room 声明限定可加入的房间。

Worker 在房间首次有人加入时创建 Room、AgentSession 与智能体并调用
session.Start，最后一名参与者离开时关闭它们。Room 同时实现
session.Room 与 session.ReplySink：字节流按 topic 分发，回复以
agent_reply 帧广播给所有参与者。
*/
package room
