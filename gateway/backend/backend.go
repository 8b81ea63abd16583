// Package backend 定义后端 Handler 契约与两类适配器：
// 流式（逐 token 产出）与非流式（整段响应，合成为统一的 chunk 协议）。
//
// Handler 产出的序列是惰性、有限、不可重放的；序列中途失败以一个
// error chunk 结束，绝不让 panic 越过 Handler 边界，网关因此不需要
// 任何后端相关的失败处理。
package backend

import (
	"context"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// Handler 后端适配器统一接口。
// Invoke 返回的 channel 由调用方消费到关闭为止；每次调用产生一个
// 全新序列，first chunk 恒为 start，最后恰好一个终止 chunk（end/error）。
type Handler interface {
	// ID 返回后端唯一标识（熔断、路由、指标共用）
	ID() string

	// Model 返回该后端的模型标识（写入 chunk metadata）
	Model() string

	// Streaming 返回该后端是否原生支持逐 token 输出
	Streaming() bool

	// Invoke 发起一次调用，返回惰性 chunk 序列。
	// 返回 error 表示调用在发出任何 chunk 之前失败（网关可安全降级）。
	Invoke(ctx context.Context, req *types.Request) (<-chan types.Chunk, error)
}

// OutcomeRecorder 接收每次调用的最终结果，驱动熔断状态。
// breaker.Registry 实现了该接口。
type OutcomeRecorder interface {
	RecordOutcome(backend string, success bool)
}

// nopRecorder 供未接熔断器的场景（测试）使用
type nopRecorder struct{}

func (nopRecorder) RecordOutcome(string, bool) {}

// Config 单个后端的连接配置
type Config struct {
	// ID 后端标识，如 swift / atlas
	ID string `yaml:"id" json:"id"`

	// Model 模型标识，写入响应 metadata
	Model string `yaml:"model" json:"model"`

	// BaseURL 上游服务地址
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey 上游鉴权密钥
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout 单次 HTTP 调用超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Streaming 是否走流式端点
	Streaming bool `yaml:"streaming" json:"streaming"`
}

// startMeta 构造 start chunk 的基础 metadata
func startMeta(id, model string) types.Metadata {
	return types.Metadata{
		types.MetaBackend: id,
		types.MetaModel:   model,
	}
}
