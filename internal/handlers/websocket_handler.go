package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/services"
	"github.com/donkeyideas/Construction-sub000/pkg/config"
	"github.com/donkeyideas/Construction-sub000/pkg/jwt"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler WebSocket处理器
// 向前端实时推送自动化执行日志
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	logService *services.AutomationLogService
	log        *logrus.Logger
	jwtManager *jwt.JWTManager
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(logService *services.AutomationLogService) *WebSocketHandler {
	// 获取CORS配置
	cfg := config.GetConfig()
	allowedOrigins := cfg.CORS.AllowOrigins

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// 如果允许所有源
				for _, allowed := range allowedOrigins {
					if allowed == "*" {
						return true
					}
				}

				// Origin为空（同源请求）时允许
				if origin == "" {
					return true
				}

				for _, allowed := range allowedOrigins {
					if matchOrigin(origin, allowed) {
						return true
					}
				}

				logger.GetLogger().Warnf("WebSocket连接被拒绝，非法Origin: %s", origin)
				return false
			},
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
		},
		logService: logService,
		log:        logger.GetLogger(),
		jwtManager: jwt.GetJWTManager(), // 使用全局JWT管理器
	}
}

// ExecutionLogs 处理执行日志实时推送的WebSocket连接
func (h *WebSocketHandler) ExecutionLogs(c *gin.Context) {
	// 从查询参数获取token（WebSocket不支持自定义header）
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
		return
	}

	// 验证token
	claims, err := h.jwtManager.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的令牌"})
		return
	}

	// 升级为WebSocket连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.log.WithFields(logrus.Fields{
		"tenant_id": claims.TenantID,
		"user_id":   claims.UserID,
	}).Info("WebSocket connection established")

	h.streamExecutionLogs(conn, claims)
}

// streamExecutionLogs 轮询新日志并推送，连接断开时退出
func (h *WebSocketHandler) streamExecutionLogs(conn *websocket.Conn, claims *jwt.JWTClaims) {
	// 读协程：只为感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 从当前最新位置开始推送，不回放历史
	lastID, err := h.logService.LatestID(claims.TenantID)
	if err != nil {
		h.log.WithError(err).Error("查询日志推送起点失败")
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			logs, err := h.logService.ListAfter(claims.TenantID, lastID, 100)
			if err != nil {
				h.log.WithError(err).Error("查询增量执行日志失败")
				continue
			}
			for i := range logs {
				if err := conn.WriteJSON(logs[i]); err != nil {
					return
				}
				lastID = logs[i].ID
			}
		}
	}
}

// matchOrigin 检查Origin是否匹配允许的模式，支持 *.example.com 通配
func matchOrigin(origin, pattern string) bool {
	if origin == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(origin, suffix)
	}
	return false
}
