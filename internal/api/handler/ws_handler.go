package handler

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/consts"
	"Classboard/internal/pkg/redis"
	"Classboard/internal/pkg/response"
	"Classboard/internal/pkg/security"
	"Classboard/internal/repository"
	"Classboard/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	redislib "github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	imService     service.IMService
	typingService service.TypingService
	directoryRepo repository.DirectoryRepo
}

func NewWsHandler(im service.IMService, typing service.TypingService, directory repository.DirectoryRepo) *WsHandler {
	return &WsHandler{imService: im, typingService: typing, directoryRepo: directory}
}

// Connect 建立网关连接
// 连接即订阅个人频道；会话房间按需加入，typing 信号走上行帧。
// 推送纯属尽力而为，连接断开或未建立时客户端退回轮询
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Error(c, service.UnauthorizedError)
		return
	}
	userID := claims.UserID

	displayName := ""
	if user, err := s.directoryRepo.GetUser(context.Background(), userID); err == nil {
		displayName = user.DisplayName
	}

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// 订阅个人频道：无论打开哪个会话界面都能收到新消息与通知信号
	pubsub := redis.Subscribe(context.Background(), consts.IMUserKey+strconv.FormatUint(userID, 10))
	defer func() {
		_ = pubsub.Close()
	}()

	log.Info("用户 WS 连接已建立", "userID", userID)

	stopChan := make(chan struct{})

	// 读循环：处理上行帧与客户端断开
	go s.readLoop(conn, pubsub, userID, displayName, stopChan)

	// 写循环：监听 Redis 并推送至客户端
	redisCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-redisCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload))
			if err != nil {
				log.Error("WS 推送失败", "userID", userID, "err", err)
				return
			}
		case <-stopChan:
			log.Info("用户 WS 连接已断开", "userID", userID)
			return
		}
	}
}

// readLoop 解析上行帧：房间进出与输入信号
func (s *WsHandler) readLoop(conn *websocket.Conn, pubsub *redislib.PubSub, userID uint64, displayName string, stopChan chan struct{}) {
	defer close(stopChan)

	joined := make(map[uint64]struct{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame dto.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("WS 上行帧解析失败", "userID", userID, "err", err)
			continue
		}

		ctx := context.Background()
		switch frame.Type {
		case "join_conversation":
			// 加入房间前校验成员身份
			if err := s.imService.AssertMember(ctx, frame.ConversationID, userID); err != nil {
				log.Warn("WS 加入房间被拒", "userID", userID, "convID", frame.ConversationID, "err", err)
				continue
			}
			channel := consts.IMConversationKey + strconv.FormatUint(frame.ConversationID, 10)
			if err := pubsub.Subscribe(ctx, channel); err != nil {
				log.Error("WS 订阅房间失败", "channel", channel, "err", err)
				continue
			}
			joined[frame.ConversationID] = struct{}{}

		case "leave_conversation":
			channel := consts.IMConversationKey + strconv.FormatUint(frame.ConversationID, 10)
			_ = pubsub.Unsubscribe(ctx, channel)
			delete(joined, frame.ConversationID)
			s.typingService.StopTyping(ctx, frame.ConversationID, userID)

		case "typing_start":
			if _, ok := joined[frame.ConversationID]; !ok {
				continue
			}
			s.typingService.StartTyping(ctx, frame.ConversationID, userID, displayName)

		case "typing_stop":
			if _, ok := joined[frame.ConversationID]; !ok {
				continue
			}
			s.typingService.StopTyping(ctx, frame.ConversationID, userID)

		default:
			log.Warn("WS 未知上行帧", "userID", userID, "type", frame.Type)
		}
	}
}
