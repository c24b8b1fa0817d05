package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationModel 通知模型
// 一次领域事件按收件人扇出为 N 条独立记录，已读状态互不影响
type NotificationModel struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID     string             `bson:"event_id" json:"eventId"`           // 触发事件标识，(event_id, recipient_id) 唯一
	RecipientID uint64             `bson:"recipient_id" json:"recipientId"`   // 收件人ID
	SenderID    uint64             `bson:"sender_id" json:"senderId"`         // 动作发起者ID (系统通知可为0)
	Type        string             `bson:"type" json:"type"`                  // general / assignment_created / assignment_graded ...
	Title       string             `bson:"title" json:"title"`                // 通知标题
	Content     string             `bson:"content" json:"content"`            // 通知文案
	ClassID     uint64             `bson:"class_id,omitempty" json:"classId"` // 关联班级 (可选)
	IsRead      bool               `bson:"is_read" json:"isRead"`             // 是否已读
	ReadAt      *time.Time         `bson:"read_at,omitempty" json:"readAt"`   // 已读时间
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`       // 创建时间
}
