// Package classifier 将入站请求映射为路由决策。
//
// 分类必须是廉价的启发式（目标 <5ms），绝不能调用模型；
// 对相同输入结果确定，便于测试断言路由行为。
package classifier

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// 路由原因代码
const (
	ReasonDefaultFast    = "default_fast"
	ReasonLongForm       = "long_form"
	ReasonPlanningIntent = "planning_intent"
	ReasonMultiQuestion  = "multi_question"
)

// Config 分类器配置
type Config struct {
	// FastBackend 低延迟后端 ID（默认路由目标）
	FastBackend string `yaml:"fast_backend" json:"fast_backend"`

	// QualityBackend 高质量后端 ID（复杂请求路由目标）
	QualityBackend string `yaml:"quality_backend" json:"quality_backend"`

	// LongFormRunes 超过该长度的请求视为复杂请求
	LongFormRunes int `yaml:"long_form_runes" json:"long_form_runes"`

	// PlanningKeywords 命中即路由到高质量后端的关键词（小写匹配）
	PlanningKeywords []string `yaml:"planning_keywords" json:"planning_keywords"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FastBackend:    "swift",
		QualityBackend: "atlas",
		LongFormRunes:  280,
		PlanningKeywords: []string{
			"itinerary", "plan my trip", "multi-day", "compare",
			"budget breakdown", "day by day", "reschedule",
		},
	}
}

// Classifier 基于启发式规则的请求分类器
type Classifier struct {
	config *Config
	logger *zap.Logger
}

// New 创建分类器
func New(config *Config, logger *zap.Logger) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FastBackend == "" {
		config.FastBackend = "swift"
	}
	if config.QualityBackend == "" {
		config.QualityBackend = "atlas"
	}
	if config.LongFormRunes <= 0 {
		config.LongFormRunes = 280
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		config: config,
		logger: logger.With(zap.String("component", "classifier")),
	}
}

// Classify 为请求产生唯一一次路由决策。
// 无法确定后端（空请求/畸形请求）时返回 INVALID_REQUEST，
// 网关据此在触碰任何后端之前短路。
func (c *Classifier) Classify(req *types.Request) (*types.RoutingDecision, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "request text is empty")
	}

	backend, reason := c.route(req.Text)
	decision := &types.RoutingDecision{
		Backend: backend,
		Reason:  reason,
		Latency: time.Since(start),
	}

	c.logger.Debug("request classified",
		zap.String("request_id", req.ID),
		zap.String("backend", decision.Backend),
		zap.String("reason", decision.Reason),
		zap.Duration("latency", decision.Latency),
	)
	return decision, nil
}

// FastBackend 返回低延迟后端 ID
func (c *Classifier) FastBackend() string {
	return c.config.FastBackend
}

// QualityBackend 返回高质量后端 ID
func (c *Classifier) QualityBackend() string {
	return c.config.QualityBackend
}

func (c *Classifier) route(text string) (backend, reason string) {
	lower := strings.ToLower(text)

	for _, kw := range c.config.PlanningKeywords {
		if strings.Contains(lower, kw) {
			return c.config.QualityBackend, ReasonPlanningIntent
		}
	}

	if utf8.RuneCountInString(text) > c.config.LongFormRunes {
		return c.config.QualityBackend, ReasonLongForm
	}

	if strings.Count(text, "?") >= 3 {
		return c.config.QualityBackend, ReasonMultiQuestion
	}

	return c.config.FastBackend, ReasonDefaultFast
}
