package session

import (
	"time"

	"github.com/BaSui01/tripflow/types"
)

// StreamSubprotocol 流式帧格式的 websocket 子协议名。
// 客户端未请求该子协议时回落到整条缓冲的旧格式。
const StreamSubprotocol = "tripflow.stream.v1"

// 帧类型
const (
	frameTypeMessage  = "message"
	frameTypePing     = "ping"
	frameTypePong     = "pong"
	frameTypeStream   = "stream"
	frameTypeResponse = "response"
)

// inboundFrame 入站消息帧
type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamFrame 流式出站帧，与分块一一对应
type streamFrame struct {
	Type      string         `json:"type"`
	ChunkType string         `json:"chunk_type"`
	Content   string         `json:"content,omitempty"`
	Metadata  types.Metadata `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// responseFrame 旧格式出站帧，一条完整回复
type responseFrame struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata types.Metadata `json:"metadata,omitempty"`
	Error    *errorBody     `json:"error,omitempty"`
}

// errorBody 对端可见的错误信息，只携带用户安全文本
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newStreamFrame 把分块转换为流式帧
func newStreamFrame(chunk types.Chunk) streamFrame {
	return streamFrame{
		Type:      frameTypeStream,
		ChunkType: string(chunk.Kind),
		Content:   chunk.Content,
		Metadata:  chunk.Metadata,
		Timestamp: chunk.Timestamp,
	}
}

// errorStreamFrame 把网关错误转换为流式错误帧
func errorStreamFrame(err *types.Error) streamFrame {
	return newStreamFrame(types.NewErrorChunk(err))
}

// errorResponseFrame 把网关错误转换为旧格式错误帧
func errorResponseFrame(err *types.Error) responseFrame {
	return responseFrame{
		Type: frameTypeResponse,
		Error: &errorBody{
			Code:    string(err.Code),
			Message: err.SafeMessage(),
		},
	}
}
