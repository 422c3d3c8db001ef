// Package config 提供 streambridge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（STREAMBRIDGE_ 前缀）的顺序加载，
// 分为 server、bridge、transport、log、telemetry 五个部分。
// Watcher 轮询配置文件，校验通过后把新配置交给 OnReload 回调
// （cmd 用它在运行时调整日志级别）。
package config
