package persistence

import (
	"fmt"

	"go.uber.org/zap"
)

// Config 轮次存储配置
type Config struct {
	// Type 存储后端类型: memory / redis / sqlite / postgres
	Type StoreType `yaml:"type" json:"type"`

	// Redis redis 后端连接配置
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// SQLitePath sqlite 数据库文件路径
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`

	// PostgresDSN postgres 连接串
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// DefaultConfig 返回默认配置（内存存储）
func DefaultConfig() Config {
	return Config{Type: StoreTypeMemory}
}

// NewTurnStore 按配置创建轮次存储
func NewTurnStore(cfg Config, logger *zap.Logger) (TurnStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Type {
	case StoreTypeMemory, "":
		logger.Info("using in-memory turn store")
		return NewMemoryTurnStore(), nil

	case StoreTypeRedis:
		logger.Info("using redis turn store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisTurnStore(cfg.Redis)

	case StoreTypeSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "tripflow.db"
		}
		logger.Info("using sqlite turn store", zap.String("path", path))
		return NewSQLiteTurnStore(path)

	case StoreTypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres turn store requires a dsn")
		}
		logger.Info("using postgres turn store")
		return NewPostgresTurnStore(cfg.PostgresDSN)

	default:
		return nil, fmt.Errorf("unknown turn store type: %s", cfg.Type)
	}
}
