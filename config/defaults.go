// =============================================================================
// ⚙️ TripFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回带有合理默认值的配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			ReadTimeout: 30 * time.Second,
			// 流式连接由会话自行管理超时
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1 MB
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "tripflow",
			TokenTTL: 24 * time.Hour,
		},
		Routing: RoutingConfig{
			FastBackend:    "swift",
			QualityBackend: "atlas",
			LongFormRunes:  280,
			PlanningKeywords: []string{
				"itinerary", "plan my trip", "multi-day", "compare",
				"budget breakdown", "day by day", "reschedule",
			},
		},
		Swift: BackendConfig{
			Model:   "swift-mini",
			BaseURL: "http://localhost:8081",
			Timeout: 30 * time.Second,
		},
		Atlas: BackendConfig{
			Model:   "atlas-large",
			BaseURL: "http://localhost:8082",
			Timeout: 90 * time.Second,
		},
		Breaker: BreakerConfig{
			Threshold:         5,
			Cooldown:          30 * time.Second,
			MaxCooldown:       5 * time.Minute,
			BackoffMultiplier: 2.0,
		},
		Gateway: GatewayConfig{
			RequestTimeout: 120 * time.Second,
			PersistTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			RateLimit:      2,
			RateBurst:      5,
			HistoryLimit:   32,
			MaxConnections: 1024,
		},
		Persistence: PersistenceConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "tripflow:",
			},
			SQLitePath: "tripflow.db",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tripflow",
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
	}
}
