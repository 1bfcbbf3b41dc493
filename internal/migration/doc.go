// 版权所有 2024 img3d Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理用户库的 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
版本号在三种方言间保持一致（由测试校验）。SQLite 连接使用纯 Go
驱动打开后交给 golang-migrate 的 sqlite3 驱动，无需 CGO。

# 核心接口与类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：默认实现，ctx 取消时请求 golang-migrate 优雅停止，
    迁移过程日志转发到 zap。
  - CLI：终端格式化输出，Run 按子命令分发，供 img3d migrate 使用。
  - NewMigratorFromConfig / NewMigratorFromDatabaseConfig / NewMigratorFromURL：
    从应用配置或连接 URL 创建迁移器。
*/
package migration
