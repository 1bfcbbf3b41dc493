// Package config 提供 img3d 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的优先级加载，
// 环境变量命名为 IMG3D_<SECTION>_<FIELD>，由结构体 env 标签推导。
// Validate 汇总返回全部校验错误。
package config
