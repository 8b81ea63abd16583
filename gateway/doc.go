// Package gateway 编排单个请求的完整生命周期：
// 分类 -> 熔断检查 -> 后端调用（含回退）-> 分块转发 -> 轮次持久化。
//
// 网关对会话层暴露唯一入口 Handle：输入一个请求，输出一条有限的
// 分块通道。协议性失败（非法请求、后端全部不可用、超时）以 error
// 分块形式出现在通道里，Handle 本身不返回错误。
//
// 子包：
//   - classifier 路由决策
//   - breaker 按后端熔断
//   - backend 后端 Handler 契约与 HTTP 实现
package gateway
