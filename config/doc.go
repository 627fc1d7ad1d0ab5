// Package config 提供 VisionFlow worker 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量以
// VISIONFLOW_ 为前缀，嵌套字段用下划线连接，例如
// VISIONFLOW_FETCH_TIMEOUT=10s。.env 文件通过 godotenv 预先载入。
package config
