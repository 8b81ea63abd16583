// =============================================================================
// 📦 TripFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TRIPFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 TripFlow 网关的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Routing 路由分类配置
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	// Swift 低延迟后端配置
	Swift BackendConfig `yaml:"swift" env:"SWIFT"`

	// Atlas 高质量后端配置
	Atlas BackendConfig `yaml:"atlas" env:"ATLAS"`

	// Breaker 熔断器配置
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`

	// Gateway 请求编排配置
	Gateway GatewayConfig `yaml:"gateway" env:"GATEWAY"`

	// Session 会话配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Persistence 轮次持久化配置
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（流式连接需要宽松或为零）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// HMAC 签名密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// 预期签发方
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 签发令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// RoutingConfig 路由分类配置
type RoutingConfig struct {
	// 低延迟后端 ID
	FastBackend string `yaml:"fast_backend" env:"FAST_BACKEND"`
	// 高质量后端 ID
	QualityBackend string `yaml:"quality_backend" env:"QUALITY_BACKEND"`
	// 长文本阈值（rune 数）
	LongFormRunes int `yaml:"long_form_runes" env:"LONG_FORM_RUNES"`
	// 规划意图关键词
	PlanningKeywords []string `yaml:"planning_keywords" env:"PLANNING_KEYWORDS"`
}

// BackendConfig 单个后端配置
type BackendConfig struct {
	// 模型标识
	Model string `yaml:"model" env:"MODEL"`
	// 上游基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 上游 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 单次上游调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// 连续失败阈值
	Threshold int `yaml:"threshold" env:"THRESHOLD"`
	// 首次冷却时间
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	// 冷却时间上限
	MaxCooldown time.Duration `yaml:"max_cooldown" env:"MAX_COOLDOWN"`
	// 冷却增长倍数
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
}

// GatewayConfig 请求编排配置
type GatewayConfig struct {
	// 单个请求总时间预算
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 异步持久化时间预算
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"PERSIST_TIMEOUT"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	// 入站消息速率上限（条/秒）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 速率突发额度
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
	// 会话上下文轮次上限
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// 并发会话数上限，0 表示不限制
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// PersistenceConfig 轮次持久化配置
type PersistenceConfig struct {
	// 存储类型: memory, redis, sqlite, postgres
	Type string `yaml:"type" env:"TYPE"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// SQLite 数据库文件路径
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	// Postgres 连接串
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TRIPFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server addr is required")
	}
	if c.Auth.Secret == "" {
		errs = append(errs, "auth secret is required")
	}
	if c.Routing.FastBackend == "" || c.Routing.QualityBackend == "" {
		errs = append(errs, "routing backends are required")
	}
	if c.Routing.LongFormRunes <= 0 {
		errs = append(errs, "long_form_runes must be positive")
	}
	if c.Swift.BaseURL == "" || c.Atlas.BaseURL == "" {
		errs = append(errs, "backend base URLs are required")
	}
	if c.Breaker.Threshold <= 0 {
		errs = append(errs, "breaker threshold must be positive")
	}
	if c.Gateway.RequestTimeout <= 0 {
		errs = append(errs, "gateway request_timeout must be positive")
	}
	switch c.Persistence.Type {
	case "memory", "redis", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("unknown persistence type: %s", c.Persistence.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
