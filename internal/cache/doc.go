// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于保存会话上下文快照。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/Set/Delete
    以及 GetJSON/SetJSON 便捷序列化方法，Key 负责拼接带前缀的键。
    Set 的 ttl 为 0 使用默认 TTL，为负数表示不过期。
  - Config：地址、密码、键前缀、默认 TTL 与健康检查间隔。

# 主要能力

  - 健康检查：后台定时 Ping，Healthy 返回最近一次结果，Close 时停止。
  - 错误语义：ErrCacheMiss、ErrClosed 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
