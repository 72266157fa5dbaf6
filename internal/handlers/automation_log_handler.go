package handlers

import (
	"strconv"

	"github.com/donkeyideas/Construction-sub000/internal/services"
	"github.com/donkeyideas/Construction-sub000/pkg/jwt"
	"github.com/donkeyideas/Construction-sub000/pkg/pagination"
	"github.com/donkeyideas/Construction-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// AutomationLogHandler 自动化执行日志处理器
type AutomationLogHandler struct {
	logService *services.AutomationLogService
}

// NewAutomationLogHandler 创建执行日志处理器
func NewAutomationLogHandler(logService *services.AutomationLogService) *AutomationLogHandler {
	return &AutomationLogHandler{
		logService: logService,
	}
}

// List 获取执行日志列表
func (h *AutomationLogHandler) List(c *gin.Context) {
	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	params := pagination.ParsePageParams(c)
	filters := services.LogListFilters{
		Status:    c.Query("status"),
		StartDate: c.Query("start"),
		EndDate:   c.Query("end"),
	}
	if ruleIDStr := c.Query("rule_id"); ruleIDStr != "" {
		ruleID, err := strconv.ParseUint(ruleIDStr, 10, 32)
		if err != nil {
			response.BadRequest(c, "无效的规则ID")
			return
		}
		filters.RuleID = uint(ruleID)
	}

	logs, total, err := h.logService.List(userClaims.TenantID, params, filters)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, logs, pageInfo)
}
