package service

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/consts"
	"Classboard/internal/pkg/mongo"
	"Classboard/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

type NotificationService interface {
	FanOut(ctx context.Context, req *dto.FanOutReq) error
	GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error)
	GetUnreadCount(ctx context.Context, userID uint64) (*dto.NotificationUnreadDTO, error)
	MarkRead(ctx context.Context, userID uint64, msgID string) error
	MarkAllRead(ctx context.Context, userID uint64) (*dto.MarkAllReadDTO, error)
}

type notificationServiceImpl struct {
	notificationRepo mongo.NotificationRepo
	directoryRepo    repository.DirectoryRepo
	pusher           Pusher
}

func NewNotificationService(
	notificationRepo mongo.NotificationRepo,
	directoryRepo repository.DirectoryRepo,
	pusher Pusher,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		directoryRepo:    directoryRepo,
		pusher:           pusher,
	}
}

// FanOut 把一次领域事件扇出为每个收件人一条独立通知
// 批量写入失败整批重试，(event_id, recipient_id) 幂等键保证不会重复插入；
// 重试耗尽才向触发方报失败
func (s *notificationServiceImpl) FanOut(ctx context.Context, req *dto.FanOutReq) error {
	if req.Type == "" || req.Title == "" {
		return ErrParamInvalid
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	recipientIDs := req.RecipientIDs
	if len(recipientIDs) == 0 {
		if req.ClassID == 0 {
			return ErrParamInvalid
		}
		ids, err := s.directoryRepo.GetClassMemberIDs(ctx, req.ClassID)
		if err != nil {
			return err
		}
		recipientIDs = ids
	}
	if len(recipientIDs) == 0 {
		return nil
	}

	now := time.Now()
	batch := make([]*mongo.NotificationModel, 0, len(recipientIDs))
	for _, rid := range recipientIDs {
		batch = append(batch, &mongo.NotificationModel{
			EventID:     eventID,
			RecipientID: rid,
			SenderID:    req.SenderID,
			Type:        req.Type,
			Title:       req.Title,
			Content:     req.Content,
			ClassID:     req.ClassID,
			IsRead:      false,
			CreatedAt:   now,
		})
	}

	var err error
	backoff := 100 * time.Millisecond
	for i := 0; i < 3; i++ {
		if err = s.notificationRepo.CreateBatch(ctx, batch); err == nil {
			break
		}
		log.Warn("通知批量写入失败，准备重试", "eventID", eventID, "attempt", i+1, "err", err)
		time.Sleep(backoff)
		backoff *= 2
	}
	if err != nil {
		log.Error("通知扇出最终失败", "eventID", eventID, "recipients", len(recipientIDs), "err", err)
		return ErrFanOutFailed
	}

	// 尽力推送到各收件人个人频道
	for _, n := range batch {
		d := s.toDTO(n)
		s.pusher.PushToUser(context.Background(), n.RecipientID, &PushEvent{Type: consts.PushNotification, Data: d})
	}

	return nil
}

// GetNotificationList 获取通知列表并补全发送者信息
func (s *notificationServiceImpl) GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error) {
	limit := int64(pageSize)
	offset := int64((page - 1) * pageSize)

	list, err := s.notificationRepo.GetNotificationList(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	// 批量补全发送者名称
	senderIDs := make([]uint64, 0, len(list))
	for _, m := range list {
		if m.SenderID > 0 {
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	nameMap := map[uint64]string{}
	if len(senderIDs) > 0 {
		users, err := s.directoryRepo.GetUsersByIDs(ctx, senderIDs)
		if err == nil {
			for _, u := range users {
				nameMap[u.ID] = u.DisplayName
			}
		}
	}

	res := make([]*dto.NotificationDTO, 0, len(list))
	for _, m := range list {
		d := s.toDTO(m)
		if m.SenderID > 0 {
			d.SenderName = nameMap[m.SenderID]
		} else {
			d.SenderName = "系统通知"
		}
		res = append(res, d)
	}

	return res, nil
}

// GetUnreadCount 获取未读数
func (s *notificationServiceImpl) GetUnreadCount(ctx context.Context, userID uint64) (*dto.NotificationUnreadDTO, error) {
	count, err := s.notificationRepo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.NotificationUnreadDTO{UnreadCount: count}, nil
}

// MarkRead 标记单条已读，重复标记不算错误
func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID uint64, msgID string) error {
	objectID, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return ErrParamInvalid
	}

	notice, err := s.notificationRepo.GetByID(ctx, objectID)
	if err != nil {
		if errors.Is(err, mongoDB.ErrNoDocuments) {
			return ErrNotificationMissing
		}
		return err
	}

	if notice.RecipientID != userID {
		return UnauthorizedError
	}

	if notice.IsRead {
		return nil
	}

	return s.notificationRepo.MarkAsRead(ctx, userID, msgID)
}

// MarkAllRead 一键已读，返回本次置位条数
func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, userID uint64) (*dto.MarkAllReadDTO, error) {
	count, err := s.notificationRepo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.MarkAllReadDTO{Count: count}, nil
}

func (s *notificationServiceImpl) toDTO(m *mongo.NotificationModel) *dto.NotificationDTO {
	d := &dto.NotificationDTO{}
	_ = copier.Copy(d, m)
	d.ID = m.ID.Hex()
	d.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339)
	if m.ReadAt != nil {
		d.ReadAt = m.ReadAt.UTC().Format(time.RFC3339)
	}
	return d
}
