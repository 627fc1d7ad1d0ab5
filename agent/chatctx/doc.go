/*
Package chatctx 管理会话的对话上下文。

ChatContext 是有序的消息序列，每条消息由若干内容片段（文本或内联图片）
组成。Holder 为会话持有权威上下文，所有修改都在副本上完成后在写锁下
整体替换（copy-then-replace），读者不会观察到半成品消息。

RedisSnapshotStore 把最新的上下文快照写入 Redis，便于事后排查。
*/
package chatctx
