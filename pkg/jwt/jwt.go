package jwt

import (
	"errors"
	"sync"
	"time"

	"github.com/donkeyideas/Construction-sub000/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims JWT声明
// 用户体系由平台侧维护，本服务只消费声明中的租户信息
type JWTClaims struct {
	UserID        uint   `json:"user_id"`
	TenantID      uint   `json:"tenant_id"` // 当前操作的公司（租户）
	Username      string `json:"username"`
	IsTenantAdmin bool   `json:"is_tenant_admin"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey     string
	tokenDuration time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     secretKey,
		tokenDuration: tokenDuration,
	}
}

// GenerateToken 生成JWT令牌
func (manager *JWTManager) GenerateToken(userID, tenantID uint, username string, isTenantAdmin bool) (string, error) {
	claims := JWTClaims{
		UserID:        userID,
		TenantID:      tenantID,
		Username:      username,
		IsTenantAdmin: isTenantAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(manager.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "Construction-Platform",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(manager.secretKey))
}

// VerifyToken 验证JWT令牌
func (manager *JWTManager) VerifyToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// 验证签名方法
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("意外的签名方法")
			}
			return []byte(manager.secretKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, errors.New("无法解析token声明")
	}

	return claims, nil
}

// 单例实现
var (
	defaultManager *JWTManager
	once           sync.Once
)

// GetJWTManager 获取全局JWT管理器实例
func GetJWTManager() *JWTManager {
	once.Do(func() {
		cfg := config.GetConfig()
		tokenDuration, err := time.ParseDuration(cfg.JWT.TokenDuration)
		if err != nil {
			tokenDuration = 24 * time.Hour
		}
		defaultManager = NewJWTManager(cfg.JWT.SecretKey, tokenDuration)
	})
	return defaultManager
}
