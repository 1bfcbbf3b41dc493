/*
包 database 提供基于 GORM 的数据库接入与连接池管理，支持
postgres、mysql 与 sqlite（纯 Go 驱动）三种后端。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法，
    后台健康检查并通过 StatsRecorder 上报连接数。
  - PoolConfig：最大空闲/打开连接数、生命周期、健康检查间隔。
  - Open / Dialector：按 config.DatabaseConfig 选择方言并建立连接，
    GORM 日志转发到 zap。

# 事务

WithTransaction 执行单次事务；WithTransactionRetry 使用 retry 包的
指数退避，对死锁、序列化失败、sqlite 写锁冲突等错误重试。
*/
package database
