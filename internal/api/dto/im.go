package dto

import "time"

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	Content     string `json:"content" binding:"required"`
	ClientMsgID string `json:"client_msg_id"` // 客户端本地临时 ID，响应原样回带用于乐观回显对账
}

// CreateConversationReq 创建会话请求体
type CreateConversationReq struct {
	Type           int8     `json:"type" binding:"required"` // 1-单聊, 2-群聊, 3-班级会话
	ParticipantIDs []uint64 `json:"participant_ids"`
	ClassID        uint64   `json:"class_id"`
	Name           string   `json:"name"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             string    `json:"id,omitempty"`
	ConversationID uint64    `json:"conversation_id"`
	SenderID       uint64    `json:"sender_id"`
	Content        string    `json:"content"`
	Seq            uint64    `json:"seq"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	Type           int8      `json:"type"`              // 1-单聊, 2-群聊, 3-班级会话
	PeerID         uint64    `json:"peer_id,omitempty"` // 对手方ID (单聊有效)
	ClassID        uint64    `json:"class_id,omitempty"`
	Name           string    `json:"name,omitempty"`
	LastMsgContent string    `json:"last_msg_content"`
	LastSenderID   uint64    `json:"last_sender_id"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnreadCount    uint64    `json:"unreadCount"`
}

// ContactDTO 联系人条目
type ContactDTO struct {
	UserID      uint64 `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// RecipientsDTO 可联系对象分组
type RecipientsDTO struct {
	Classmates []*ContactDTO `json:"classmates"`
	Teachers   []*ContactDTO `json:"teachers"`
	Admins     []*ContactDTO `json:"admins"`
}

// ReadReceiptDTO 已读回执推送
type ReadReceiptDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	ReadSeq        uint64 `json:"read_seq"`
}

// MarkAsReadReq 标记为已读请求
type MarkAsReadReq struct {
	ConversationID uint64 `json:"conversation_id" binding:"required"`
	Sequence       uint64 `json:"sequence" binding:"required"` // 客户端当前看到的最后一条消息序号
}

// TypingDTO 正在输入推送
type TypingDTO struct {
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	Username       string `json:"username,omitempty"`
}

// ClientFrame 网关上行帧
type ClientFrame struct {
	Type           string `json:"type"` // join_conversation / leave_conversation / typing_start / typing_stop
	ConversationID uint64 `json:"conversation_id"`
}
