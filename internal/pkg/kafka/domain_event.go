package kafka

// DomainEvent 教务侧领域事件
// 作业创建/批改/提交、评论、资料上传等动作触发通知扇出；
// event_id 作为幂等键，重投不会产生重复通知
type DomainEvent struct {
	EventID      string   `json:"event_id"`
	Type         string   `json:"type"` // assignment_created / assignment_graded / ...
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	SenderID     uint64   `json:"sender_id"`
	ClassID      uint64   `json:"class_id"`
	RecipientIDs []uint64 `json:"recipient_ids"` // 为空且携带 class_id 时按花名册解析
}
