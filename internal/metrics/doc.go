// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
//
// 指标按网关的关注点分组：
//   - 网关请求（按后端和结果计数、时延分布）
//   - 流式分块（按后端和类型计数）
//   - 熔断器状态（gauge + 状态转换计数）
//   - 会话生命周期（活跃连接、拒绝计数）
//   - 持久化失败计数
package metrics
