// Package config 提供网关的统一配置加载。
// 优先级: 默认值 → YAML 文件 → 环境变量（TRIPFLOW_ 前缀）。
package config
