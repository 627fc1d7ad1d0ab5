// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为图片制品索引打开 GORM 连接并管理连接池。

# 核心类型

  - Config：驱动（postgres 或 sqlite）、DSN、GORM 日志级别、慢查询阈值与连接池配置。
    GORM 日志经 zap 输出（logger 名为 gorm）。
  - Open：按驱动选择 gorm.io/driver/postgres 或 glebarez/sqlite，
    打开连接并返回 PoolManager。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping、Stats、
    Close，并可在后台定时探活。
*/
package database
