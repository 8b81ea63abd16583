// Package testutil 提供测试辅助工具。
//
// 子包 mocks 提供网关协作组件的模拟实现（后端 Handler、轮次存储），
// 本包提供通用的分块收集辅助函数。仅用于测试。
package testutil
