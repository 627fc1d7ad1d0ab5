/*
Package tasks 提供会话级后台任务集合。

Group 记录每个正在运行的任务（流接收、URL 抓取），任务结束后自动移除；
任务错误和 panic 被记录日志但不会影响会话。Close 取消所有未完成任务并
等待其退出，用于会话关闭时的清理。并发上限由槽位信号量控制：
Go 从不阻塞调用方，超出上限的任务在后台排队等待空闲槽位，
Close 时仍在排队的任务直接取消。
*/
package tasks
