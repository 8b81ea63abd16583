// Package api 暴露网关的 HTTP 外层：
// websocket 会话入口、健康与就绪检查、熔断器状态接口、
// 令牌签发接口与 Prometheus 指标端点。
package api
