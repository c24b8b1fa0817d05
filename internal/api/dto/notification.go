package dto

// NotificationDTO 通知列表项响应
type NotificationDTO struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	SenderID   uint64 `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	ClassID    uint64 `json:"class_id,omitempty"`
	IsRead     bool   `json:"is_read"`
	ReadAt     string `json:"read_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// NotificationUnreadDTO 未读角标
type NotificationUnreadDTO struct {
	UnreadCount int64 `json:"unread_count"`
}

// MarkAllReadDTO 一键已读结果
type MarkAllReadDTO struct {
	Count int64 `json:"count"`
}

// FanOutReq 扇出请求（领域事件）
type FanOutReq struct {
	EventID      string   `json:"event_id"`
	Type         string   `json:"type" validate:"required"`
	Title        string   `json:"title" validate:"required"`
	Content      string   `json:"content"`
	SenderID     uint64   `json:"sender_id"`
	ClassID      uint64   `json:"class_id"`
	RecipientIDs []uint64 `json:"recipient_ids"` // 为空且携带 class_id 时按花名册解析
}
