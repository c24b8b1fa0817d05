package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepo interface {
	CreateBatch(ctx context.Context, list []*NotificationModel) error
	GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*NotificationModel, error)
	MarkAsRead(ctx context.Context, userID uint64, msgID string) error
	MarkAllAsRead(ctx context.Context, userID uint64) (int64, error)
	GetUnreadCount(ctx context.Context, userID uint64) (int64, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*NotificationModel, error)
}

type notificationRepoImpl struct {
	col *mongo.Collection
}

func NewNotificationRepo(db *mongo.Database) NotificationRepo {
	return &notificationRepoImpl{
		col: db.Collection("notification"),
	}
}

// CreateBatch 扇出写入：一次事件为每个收件人插入一条记录
// 乱序批量插入，命中 (event_id, recipient_id) 唯一索引的重复项直接忽略，
// 因此部分失败后整批重试只会补齐缺失的收件人
func (s *notificationRepoImpl) CreateBatch(ctx context.Context, list []*NotificationModel) error {
	if len(list) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(list))
	for _, n := range list {
		docs = append(docs, n)
	}

	_, err := s.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	// 仅包含重复键错误视为成功（重试补偿路径）
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		for _, we := range bulkErr.WriteErrors {
			if !mongo.IsDuplicateKeyError(we) {
				return err
			}
		}
		return nil
	}
	return err
}

// GetNotificationList 分页获取用户的通知列表 (按时间倒序)
func (s *notificationRepoImpl) GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*NotificationModel, error) {
	filter := bson.M{"recipient_id": userID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var list []*NotificationModel
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkAsRead 标记单条通知为已读
func (s *notificationRepoImpl) MarkAsRead(ctx context.Context, userID uint64, msgID string) error {
	objectID, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return mongo.ErrInvalidIndexValue
	}
	filter := bson.M{"_id": objectID, "recipient_id": userID}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now()}}
	result, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkAllAsRead 一键清除未读，返回本次实际置位的条数（重复调用返回 0）
func (s *notificationRepoImpl) MarkAllAsRead(ctx context.Context, userID uint64) (int64, error) {
	filter := bson.M{"recipient_id": userID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now()}}
	result, err := s.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// GetUnreadCount 获取用户的未读通知总数
func (s *notificationRepoImpl) GetUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	filter := bson.M{"recipient_id": userID, "is_read": false}
	return s.col.CountDocuments(ctx, filter)
}

// GetByID 根据 ID 获取通知
func (s *notificationRepoImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*NotificationModel, error) {
	var msg NotificationModel
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
