// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 artifacts 负责把接收到或抓取到的图片落盘，并按保留策略清理。

# 文件命名

  - 流式接收：received_image_<participant>_<unix 秒>.png
  - URL 抓取：fetched_image_<unix 秒>.png

同一秒内同名文件会被覆盖，索引中的旧条目同时被替换。参与者身份中的
路径分隔符会被替换为下划线，文件不会写出产物目录。

# 索引

Index 记录每个文件的元数据（ID、类型、参与者、会话、大小、sha256
校验和、MIME、创建与过期时间）。提供两种实现：

  - FileIndex：目录下的 index.json
  - GormIndex：image_artifacts 表，支持 PostgreSQL 与 SQLite

# 保留策略

Cleanup 先删除超过 MaxAge 的条目，再按创建时间删除超出 MaxFiles 的
最旧条目；两个值为 0 时对应规则关闭。RunJanitor 按 CleanupInterval
周期执行 Cleanup，直到上下文取消。
*/
package artifacts
