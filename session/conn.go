package session

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// Conn 抽象对端连接，便于测试替换
type Conn interface {
	// Read 读取下一条入站消息
	Read(ctx context.Context) ([]byte, error)

	// Write 写出一条出站消息，实现必须对并发调用安全
	Write(ctx context.Context, data []byte) error

	// Subprotocol 返回握手时协商到的子协议（空表示旧客户端）
	Subprotocol() string

	// Close 关闭连接
	Close(reason string) error
}

// WebsocketConn 把 websocket.Conn 适配为 Conn。
// 写入由互斥锁串行化：忙碌拒绝帧可能与转发帧并发写出。
type WebsocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebsocketConn 创建 websocket 连接适配器
func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{conn: conn}
}

// Read 实现 Conn
func (c *WebsocketConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Write 实现 Conn
func (c *WebsocketConn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Subprotocol 实现 Conn
func (c *WebsocketConn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// Close 实现 Conn
func (c *WebsocketConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}
