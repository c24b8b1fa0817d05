package kafka

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// NotifyHandler 消费教务领域事件并触发通知扇出
type NotifyHandler struct {
	notificationService service.NotificationService
}

func NewNotifyHandler(notificationService service.NotificationService) *NotifyHandler {
	return &NotifyHandler{notificationService: notificationService}
}

func (s *NotifyHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("notify consumer setup")
	return nil
}

func (s *NotifyHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("notify consumer cleanup")
	return nil
}

func (s *NotifyHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("topic-domain-events consume claim")
	err := pullMessageBatch(session, claim, s.logic)
	if err != nil {
		log.Error("topic-domain-events process batch error", "err", err)
		return err
	}
	log.Info("topic-domain-events consume claim end")
	return nil
}

func (s *NotifyHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event DomainEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 脏消息不重试，记录后跳过
		log.Error("unmarshal domain event error", "err", err, "msg_key", string(msg.Key))
		return nil
	}

	if event.EventID == "" || event.Type == "" {
		log.Warn("domain event missing identity, skipped", "msg_key", string(msg.Key))
		return nil
	}

	req := &dto.FanOutReq{
		EventID:      event.EventID,
		Type:         event.Type,
		Title:        event.Title,
		Content:      event.Content,
		SenderID:     event.SenderID,
		ClassID:      event.ClassID,
		RecipientIDs: event.RecipientIDs,
	}

	// 返回错误交给批处理的退避重试；幂等键保证重试不会重复扇出
	return s.notificationService.FanOut(ctx, req)
}
