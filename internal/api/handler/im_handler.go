package handler

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/response"
	"Classboard/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

// CreateConversation 创建会话接口（单聊幂等）
func (s *IMHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")

	res, err := s.imService.CreateConversation(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendMessage 发送消息接口
func (s *IMHandler) SendMessage(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	// 从 Context 中获取中间件解析出的当前用户 ID
	senderID := c.GetUint64("userID")

	res, err := s.imService.SendMessage(c, senderID, convID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 获取消息列表
// 带 after_seq 为增量同步（升序续传），否则按 last_seq 降序翻历史
func (s *IMHandler) GetMessages(c *gin.Context) {
	convID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	userID := c.GetUint64("userID")

	if afterStr, ok := c.GetQuery("after_seq"); ok {
		afterSeq, _ := strconv.ParseUint(afterStr, 10, 64)
		res, err := s.imService.SyncMessages(c, userID, convID, afterSeq, pageSize)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, res)
		return
	}

	lastSeq, _ := strconv.ParseUint(c.Query("last_seq"), 10, 64)
	res, err := s.imService.GetChatHistory(c, userID, convID, lastSeq, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetConversationList 获取会话列表
func (s *IMHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64("userID")
	res, err := s.imService.GetConversationList(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetRecipients 获取可联系对象分组
func (s *IMHandler) GetRecipients(c *gin.Context) {
	userID := c.GetUint64("userID")
	res, err := s.imService.GetRecipients(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// MarkAsRead 标记已读接口
func (s *IMHandler) MarkAsRead(c *gin.Context) {
	var req dto.MarkAsReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("userID")

	err := s.imService.MarkAsRead(c, userID, req.ConversationID, req.Sequence)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}
