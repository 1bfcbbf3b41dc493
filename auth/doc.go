// 版权所有 2024 img3d Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package auth 提供账号注册、登录与会话令牌。

用户保存在 users 表（gorm，支持 postgres / mysql / sqlite），邮箱唯一且大小写不敏感。
密码使用 bcrypt 存储；Google 登录的用户没有密码，只能通过 OAuth 登录。

登录成功后签发 HS256 JWT，载荷包含 user_id、email、name 与签发者，
有效期由 auth.session_ttl 配置（默认 30 天）。ParseToken 只接受 HS256，
并校验签发者与过期时间。

启动时可根据配置创建管理员账号（SeedAdmin），已存在时跳过。
*/
package auth
