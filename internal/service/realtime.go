package service

import (
	"Classboard/internal/pkg/consts"
	"Classboard/internal/pkg/redis"
	"context"
	log "log/slog"
	"strconv"

	"github.com/goccy/go-json"
)

// PushEvent 推送事件信封：每种事件固定结构，客户端无需猜测响应形状
type PushEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Pusher 推送总线抽象。推送只是延迟优化，失败一律吞掉并记录，
// 未连接的客户端依靠同步接口轮询补齐
type Pusher interface {
	PushToUser(ctx context.Context, userID uint64, event *PushEvent)
	PushToConversation(ctx context.Context, convID uint64, event *PushEvent)
}

// redisPusher 经 Redis Pub/Sub 发布，由网关订阅转发
type redisPusher struct{}

func NewRedisPusher() Pusher {
	return &redisPusher{}
}

func (s *redisPusher) PushToUser(ctx context.Context, userID uint64, event *PushEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal push event", "type", event.Type, "err", err)
		return
	}
	channel := consts.IMUserKey + strconv.FormatUint(userID, 10)
	if err := redis.Publish(ctx, channel, data); err != nil {
		log.Error("Push to user channel failed", "userID", userID, "type", event.Type, "err", err)
	}
}

func (s *redisPusher) PushToConversation(ctx context.Context, convID uint64, event *PushEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal push event", "type", event.Type, "err", err)
		return
	}
	channel := consts.IMConversationKey + strconv.FormatUint(convID, 10)
	if err := redis.Publish(ctx, channel, data); err != nil {
		log.Error("Push to conversation channel failed", "convID", convID, "type", event.Type, "err", err)
	}
}

// noopPusher 实时推送关闭时（如 Serverless 部署）的空实现
type noopPusher struct{}

func NewNoopPusher() Pusher {
	return &noopPusher{}
}

func (s *noopPusher) PushToUser(ctx context.Context, userID uint64, event *PushEvent)         {}
func (s *noopPusher) PushToConversation(ctx context.Context, convID uint64, event *PushEvent) {}
