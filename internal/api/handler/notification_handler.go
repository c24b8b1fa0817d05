package handler

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/response"
	"Classboard/internal/pkg/util"
	"Classboard/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService service.NotificationService
}

func NewNotificationHandler(s service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: s,
	}
}

// GetNotificationList 获取通知列表
func (h *NotificationHandler) GetNotificationList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	userID := c.GetUint64("userID")

	list, err := h.notificationService.GetNotificationList(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, list)
}

// GetUnreadCount 获取未读数
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetUint64("userID")

	unread, err := h.notificationService.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, unread)
}

// MarkRead 标记单条已读（幂等）
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	msgID := c.Param("notification_id")
	if msgID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")
	err := h.notificationService.MarkRead(c.Request.Context(), userID, msgID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// Announce 公告扇出：管理员/教师向指定收件人或整个班级下发通知
func (h *NotificationHandler) Announce(c *gin.Context) {
	var req dto.FanOutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	req.SenderID = c.GetUint64("userID")

	if err := h.notificationService.FanOut(c.Request.Context(), &req); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// MarkAllRead 一键已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetUint64("userID")
	res, err := h.notificationService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, res)
}
