// =============================================================================
// 📡 TripFlow API Handlers
// =============================================================================
// HTTP 处理器集合:
//   - WSHandler: websocket 会话入口（/v1/chat）
//   - HealthHandler: 健康 / 就绪 / 版本
//   - BackendsHandler: 熔断器状态与运维重置
//   - TokenHandler: 令牌签发
// =============================================================================
package handlers
