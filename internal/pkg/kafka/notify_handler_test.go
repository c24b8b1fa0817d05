package kafka

import (
	"Classboard/internal/api/dto"
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotificationService struct {
	fanOutErr error
	reqs      []*dto.FanOutReq
}

func (s *stubNotificationService) FanOut(ctx context.Context, req *dto.FanOutReq) error {
	s.reqs = append(s.reqs, req)
	return s.fanOutErr
}

func (s *stubNotificationService) GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error) {
	return nil, nil
}

func (s *stubNotificationService) GetUnreadCount(ctx context.Context, userID uint64) (*dto.NotificationUnreadDTO, error) {
	return nil, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, userID uint64, msgID string) error {
	return nil
}

func (s *stubNotificationService) MarkAllRead(ctx context.Context, userID uint64) (*dto.MarkAllReadDTO, error) {
	return nil, nil
}

func kafkaMsg(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic: "domain-events",
		Key:   []byte("k"),
		Value: []byte(value),
	}
}

func TestNotifyHandler_MapsEventToFanOut(t *testing.T) {
	stub := &stubNotificationService{}
	h := NewNotifyHandler(stub)

	err := h.logic(context.Background(), kafkaMsg(`{
		"event_id": "evt-1",
		"type": "assignment_created",
		"title": "新作业",
		"content": "第三章课后题",
		"sender_id": 7,
		"class_id": 10
	}`))
	require.NoError(t, err)
	require.Len(t, stub.reqs, 1)

	req := stub.reqs[0]
	assert.Equal(t, "evt-1", req.EventID)
	assert.Equal(t, "assignment_created", req.Type)
	assert.Equal(t, uint64(7), req.SenderID)
	assert.Equal(t, uint64(10), req.ClassID)
}

func TestNotifyHandler_SkipsDirtyMessages(t *testing.T) {
	stub := &stubNotificationService{}
	h := NewNotifyHandler(stub)
	ctx := context.Background()

	// 解析不了的消息不能卡死分区，跳过且不触发扇出
	require.NoError(t, h.logic(ctx, kafkaMsg(`{not json`)))
	require.NoError(t, h.logic(ctx, kafkaMsg(`{"type":"general","title":"缺事件ID"}`)))
	require.NoError(t, h.logic(ctx, kafkaMsg(`{"event_id":"evt-x","title":"缺类型"}`)))
	assert.Empty(t, stub.reqs)
}

func TestNotifyHandler_PropagatesFanOutError(t *testing.T) {
	stub := &stubNotificationService{fanOutErr: errors.New("mongo down")}
	h := NewNotifyHandler(stub)

	// 扇出失败要回传给批处理层做退避重试
	err := h.logic(context.Background(), kafkaMsg(`{"event_id":"evt-1","type":"general","title":"t"}`))
	assert.Error(t, err)
}
