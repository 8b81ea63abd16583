package testutil

import (
	"testing"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// CollectChunks 排空分块通道并返回全部分块。
// 超时未关闭视为测试失败，避免悬挂的流卡死整个测试进程。
func CollectChunks(t *testing.T, ch <-chan types.Chunk, timeout time.Duration) []types.Chunk {
	t.Helper()

	var chunks []types.Chunk
	deadline := time.After(timeout)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-deadline:
			t.Fatalf("chunk channel not closed within %s (got %d chunks)", timeout, len(chunks))
			return nil
		}
	}
}

// ChunkKinds 提取分块类型序列，便于断言协议顺序
func ChunkKinds(chunks []types.Chunk) []types.ChunkKind {
	kinds := make([]types.ChunkKind, len(chunks))
	for i, c := range chunks {
		kinds[i] = c.Kind
	}
	return kinds
}

// JoinTokens 按顺序拼接所有 token 分块内容
func JoinTokens(chunks []types.Chunk) string {
	var out string
	for _, c := range chunks {
		if c.Kind == types.ChunkToken {
			out += c.Content
		}
	}
	return out
}

// Eventually 轮询条件直到成立或超时
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
