package session

import (
	"strings"

	"github.com/BaSui01/tripflow/types"
)

// Buffer 为旧客户端装配完整回复。
// 每个请求一个 Buffer，回复下发后即丢弃。
type Buffer struct {
	content strings.Builder
	meta    types.Metadata
	err     *errorBody
}

// NewBuffer 创建响应缓冲
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add 累积一个分块
func (b *Buffer) Add(chunk types.Chunk) {
	switch chunk.Kind {
	case types.ChunkToken:
		b.content.WriteString(chunk.Content)
	case types.ChunkEnd:
		b.meta = chunk.Metadata
	case types.ChunkError:
		code, _ := chunk.Metadata[types.MetaReason].(string)
		b.err = &errorBody{Code: code, Message: chunk.Content}
	}
}

// Failed 报告序列是否以错误终结
func (b *Buffer) Failed() bool {
	return b.err != nil
}

// Content 返回已装配的回复文本
func (b *Buffer) Content() string {
	return b.content.String()
}

// Frame 生成一条完整的旧格式出站帧。
// 错误终结时仍携带已收到的部分内容，客户端自行决定是否展示。
func (b *Buffer) Frame() responseFrame {
	return responseFrame{
		Type:     frameTypeResponse,
		Content:  b.content.String(),
		Metadata: b.meta,
		Error:    b.err,
	}
}
