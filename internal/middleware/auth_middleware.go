package middleware

import (
	"strings"

	"github.com/donkeyideas/Construction-sub000/pkg/jwt"
	"github.com/donkeyideas/Construction-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 权限中间件
// 用户和权限由平台的账号模块管理，这里只做令牌校验和租户身份提取
type AuthMiddleware struct {
	jwtManager *jwt.JWTManager
}

func NewAuthMiddleware() *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwt.GetJWTManager(), // 使用全局JWT管理器
	}
}

// RequireLogin 要求登录
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从Authorization头获取JWT token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		// 检查Bearer格式
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "认证头格式错误")
			c.Abort()
			return
		}

		// 提取并验证token
		tokenString := authHeader[7:] // 去掉 "Bearer "
		claims, err := m.jwtManager.VerifyToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		// 将身份信息保存到上下文
		c.Set("user_id", claims.UserID)
		c.Set("tenant_id", claims.TenantID)
		c.Set("username", claims.Username)
		c.Set("is_tenant_admin", claims.IsTenantAdmin)
		c.Set("claims", claims)

		c.Next()
	}
}

// RequireTenantAdmin 要求租户管理员
func (m *AuthMiddleware) RequireTenantAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		isTenantAdmin, exists := c.Get("is_tenant_admin")
		if !exists {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if !isTenantAdmin.(bool) {
			response.Forbidden(c, "需要管理员权限")
			c.Abort()
			return
		}

		c.Next()
	}
}
