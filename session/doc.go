// Package session 管理一条长连接的完整生命周期：
// 读取入站消息、拒绝并发请求、把网关分块按协商的帧格式写回对端。
//
// 帧格式在握手时通过 websocket 子协议协商：
//   - tripflow.stream.v1：逐分块流式帧（type=stream）
//   - 默认（旧客户端）：整条缓冲后一次性下发（type=response）
//
// 同一连接同一时刻只处理一个请求，流式未结束时的新请求
// 以 SESSION_BUSY 错误帧拒绝。对端断开只停止帧投递，
// 进行中的网关调用与持久化照常完成。
package session
