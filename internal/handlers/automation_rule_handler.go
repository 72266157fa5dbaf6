package handlers

import (
	"errors"
	"strconv"

	"github.com/donkeyideas/Construction-sub000/internal/services"
	"github.com/donkeyideas/Construction-sub000/pkg/jwt"
	"github.com/donkeyideas/Construction-sub000/pkg/pagination"
	"github.com/donkeyideas/Construction-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// AutomationRuleHandler 自动化规则处理器
type AutomationRuleHandler struct {
	ruleService *services.AutomationRuleService
	logService  *services.AutomationLogService
}

// NewAutomationRuleHandler 创建自动化规则处理器
func NewAutomationRuleHandler(ruleService *services.AutomationRuleService, logService *services.AutomationLogService) *AutomationRuleHandler {
	return &AutomationRuleHandler{
		ruleService: ruleService,
		logService:  logService,
	}
}

// Create 创建自动化规则
func (h *AutomationRuleHandler) Create(c *gin.Context) {
	// 获取用户信息
	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	// 解析请求
	var req services.CreateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 解析验证错误，提供更友好的提示
		if validationErr, ok := err.(validator.ValidationErrors); ok {
			errorMsg := "参数验证失败"
			for _, fieldErr := range validationErr {
				switch fieldErr.Field() {
				case "Name":
					errorMsg = "规则名称不能为空，且长度不超过200个字符"
				case "TriggerType":
					errorMsg = "触发类型不能为空"
				case "TriggerEntity":
					errorMsg = "触发实体不能为空"
				case "Description":
					errorMsg = "规则描述长度不超过500个字符"
				}
			}
			response.BadRequest(c, errorMsg)
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	// 创建规则
	rule, err := h.ruleService.Create(userClaims.TenantID, userClaims.UserID, req)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, rule)
}

// Update 更新自动化规则
func (h *AutomationRuleHandler) Update(c *gin.Context) {
	ruleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的规则ID")
		return
	}

	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	var req services.UpdateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rule, err := h.ruleService.Update(userClaims.TenantID, uint(ruleID), userClaims.UserID, req)
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, rule)
}

// Delete 删除自动化规则
// 规则删除后不再触发，历史执行日志保留
func (h *AutomationRuleHandler) Delete(c *gin.Context) {
	ruleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的规则ID")
		return
	}

	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	if err := h.ruleService.Delete(userClaims.TenantID, uint(ruleID)); err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "规则已删除", nil)
}

// GetByID 根据ID获取自动化规则
func (h *AutomationRuleHandler) GetByID(c *gin.Context) {
	ruleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的规则ID")
		return
	}

	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	rule, err := h.ruleService.GetByID(userClaims.TenantID, uint(ruleID))
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, rule)
}

// List 获取自动化规则列表
func (h *AutomationRuleHandler) List(c *gin.Context) {
	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	params := pagination.ParsePageParams(c)
	filters := services.RuleListFilters{
		TriggerType:   c.Query("trigger_type"),
		TriggerEntity: c.Query("trigger_entity"),
		EnabledOnly:   c.Query("enabled_only") == "true",
		Search:        c.Query("search"),
	}

	rules, total, err := h.ruleService.List(userClaims.TenantID, params, filters)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, rules, pageInfo)
}

// Toggle 启用/禁用自动化规则
func (h *AutomationRuleHandler) Toggle(c *gin.Context) {
	ruleID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的规则ID")
		return
	}

	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "缺少enabled参数")
		return
	}

	rule, err := h.ruleService.SetEnabled(userClaims.TenantID, uint(ruleID), userClaims.UserID, *req.Enabled)
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, rule)
}

// GetStats 获取自动化统计
func (h *AutomationRuleHandler) GetStats(c *gin.Context) {
	claims, _ := c.Get("claims")
	userClaims := claims.(*jwt.JWTClaims)

	stats, err := h.ruleService.GetStats(userClaims.TenantID, h.logService)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}
