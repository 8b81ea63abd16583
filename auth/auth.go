// Package auth 校验对端身份。
// 连接升级前必须带有效的 JWT：Authorization 头或 token 查询参数
// （浏览器 websocket 客户端无法自定义请求头）。
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/types"
)

// Config 认证配置
type Config struct {
	// Secret HMAC 签名密钥
	Secret string `yaml:"secret" json:"secret"`

	// Issuer 预期签发方（为空则不校验）
	Issuer string `yaml:"issuer" json:"issuer"`

	// TokenTTL 签发令牌的有效期
	TokenTTL time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{TokenTTL: 24 * time.Hour}
}

// Claims 网关使用的 JWT 声明。
// Subject 为用户 ID，conversation_id 缺失时每条连接新开会话。
type Claims struct {
	jwt.RegisteredClaims
	ConversationID string `json:"conversation_id,omitempty"`
}

// Verifier JWT 校验器
type Verifier struct {
	config *Config
	logger *zap.Logger
}

// NewVerifier 创建校验器
func NewVerifier(config *Config, logger *zap.Logger) (*Verifier, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		config: config,
		logger: logger.With(zap.String("component", "auth")),
	}, nil
}

// Verify 校验令牌并返回声明
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, types.NewError(types.ErrUnauthorized, "token validation failed").
			WithCause(err).
			WithHTTPStatus(http.StatusUnauthorized)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, types.NewError(types.ErrUnauthorized, "token missing subject").
			WithHTTPStatus(http.StatusUnauthorized)
	}

	// 会话 ID 未随令牌下发时为本条连接新开会话
	if claims.ConversationID == "" {
		claims.ConversationID = uuid.New().String()
	}
	return claims, nil
}

// FromRequest 从 HTTP 请求提取并校验令牌
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	tokenString := ""
	if header := r.Header.Get("Authorization"); header != "" {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return nil, types.NewError(types.ErrUnauthorized, "no token presented").
			WithHTTPStatus(http.StatusUnauthorized)
	}
	return v.Verify(tokenString)
}

// Issue 签发令牌（运维与测试入口）
func (v *Verifier) Issue(userID, conversationID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.config.TokenTTL)),
		},
		ConversationID: conversationID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.config.Secret))
}
