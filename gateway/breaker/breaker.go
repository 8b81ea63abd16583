package breaker

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int `yaml:"threshold" json:"threshold"`

	// Cooldown 首次熔断恢复等待时间（Open -> HalfOpen）
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`

	// MaxCooldown 退避增长的冷却时间上限
	MaxCooldown time.Duration `yaml:"max_cooldown" json:"max_cooldown"`

	// BackoffMultiplier 半开失败后冷却时间的增长倍数
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`

	// OnStateChange 状态变更回调
	OnStateChange func(backend string, from, to State) `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:         5,
		Cooldown:          30 * time.Second,
		MaxCooldown:       5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// BackendStatus 单个后端的熔断器快照（用于状态接口）
type BackendStatus struct {
	Backend             string    `json:"backend"`
	Status              string    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	RetryAfter          time.Time `json:"retry_after,omitempty"`
}

// backendState 单个后端的内部状态。
// 只能在 Registry.mu 保护下读写。
type backendState struct {
	status              State
	consecutiveFailures int
	openedAt            time.Time
	retryAfter          time.Time
	trialInFlight       bool
	cooldown            *backoff.ExponentialBackOff
}

// Registry 按后端维护熔断器状态机。
// Allow 是网关判断是否降级的廉价同步信号；RecordOutcome 是唯一的
// 状态变更入口，由 Handler 调用结果驱动。两者在多个并发请求下安全。
type Registry struct {
	config *Config
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*backendState
}

// NewRegistry 创建熔断器注册表
func NewRegistry(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 1 {
		config.BackoffMultiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		states: make(map[string]*backendState),
	}
}

// Allow 报告是否允许调用指定后端。
// closed 直接放行；open 在冷却期内拒绝，冷却到期后转入 half_open
// 并放行恰好一次试探调用；half_open 在试探未结束前拒绝其余请求。
func (r *Registry) Allow(backend string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state(backend)
	switch st.status {
	case StateClosed:
		return true

	case StateOpen:
		if time.Now().Before(st.retryAfter) {
			return false
		}
		// 冷却到期，进入半开并占用唯一的试探名额
		r.setState(backend, st, StateHalfOpen)
		st.trialInFlight = true
		r.logger.Info("熔断器进入半开状态", zap.String("backend", backend))
		return true

	case StateHalfOpen:
		if st.trialInFlight {
			return false
		}
		st.trialInFlight = true
		return true

	default:
		return false
	}
}

// RecordOutcome 记录一次调用结果。包括被放弃请求的最终结果，
// 保证熔断状态不因连接断开而失真。
func (r *Registry) RecordOutcome(backend string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state(backend)
	if success {
		r.onSuccess(backend, st)
	} else {
		r.onFailure(backend, st)
	}
}

func (r *Registry) onSuccess(backend string, st *backendState) {
	switch st.status {
	case StateClosed:
		st.consecutiveFailures = 0

	case StateHalfOpen:
		r.logger.Info("熔断器恢复正常", zap.String("backend", backend))
		r.setState(backend, st, StateClosed)
		st.consecutiveFailures = 0
		st.trialInFlight = false
		st.cooldown = nil // 冷却退避重新从初始值开始

	case StateOpen:
		// 迟到的成功结果（例如请求被放弃后台完成）
		r.logger.Warn("熔断器打开状态收到成功响应", zap.String("backend", backend))
	}
}

func (r *Registry) onFailure(backend string, st *backendState) {
	st.consecutiveFailures++

	switch st.status {
	case StateClosed:
		if st.consecutiveFailures >= r.config.Threshold {
			r.open(backend, st)
			r.logger.Warn("熔断器打开",
				zap.String("backend", backend),
				zap.Int("failure_count", st.consecutiveFailures),
				zap.Int("threshold", r.config.Threshold),
				zap.Time("retry_after", st.retryAfter),
			)
		}

	case StateHalfOpen:
		// 试探失败，重新打开并增长冷却时间
		st.trialInFlight = false
		r.open(backend, st)
		r.logger.Warn("熔断器半开试探失败，重新打开",
			zap.String("backend", backend),
			zap.Time("retry_after", st.retryAfter),
		)

	case StateOpen:
		r.logger.Debug("熔断器打开状态收到失败响应", zap.String("backend", backend))
	}
}

// open 转入打开状态并计算下一次冷却窗口
func (r *Registry) open(backend string, st *backendState) {
	if st.cooldown == nil {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = r.config.Cooldown
		bo.Multiplier = r.config.BackoffMultiplier
		bo.MaxInterval = r.config.MaxCooldown
		bo.RandomizationFactor = 0
		st.cooldown = bo
	}
	st.openedAt = time.Now()
	st.retryAfter = st.openedAt.Add(st.cooldown.NextBackOff())
	r.setState(backend, st, StateOpen)
}

// State 返回指定后端的当前状态
func (r *Registry) State(backend string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(backend).status
}

// Snapshot 返回所有已知后端的熔断器快照
func (r *Registry) Snapshot() []BackendStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BackendStatus, 0, len(r.states))
	for backend, st := range r.states {
		out = append(out, BackendStatus{
			Backend:             backend,
			Status:              st.status.String(),
			ConsecutiveFailures: st.consecutiveFailures,
			OpenedAt:            st.openedAt,
			RetryAfter:          st.retryAfter,
		})
	}
	return out
}

// Reset 手动恢复指定后端（运维入口）
func (r *Registry) Reset(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state(backend)
	old := st.status
	r.setState(backend, st, StateClosed)
	st.consecutiveFailures = 0
	st.trialInFlight = false
	st.cooldown = nil

	r.logger.Info("熔断器已重置",
		zap.String("backend", backend),
		zap.String("from_state", old.String()),
	)
}

// state 获取或创建后端状态，调用方必须持有 r.mu
func (r *Registry) state(backend string) *backendState {
	st, ok := r.states[backend]
	if !ok {
		st = &backendState{status: StateClosed}
		r.states[backend] = st
	}
	return st
}

// setState 设置状态并触发回调，调用方必须持有 r.mu
func (r *Registry) setState(backend string, st *backendState, newState State) {
	old := st.status
	if old == newState {
		return
	}
	st.status = newState

	if r.config.OnStateChange != nil {
		go r.config.OnStateChange(backend, old, newState)
	}
}
