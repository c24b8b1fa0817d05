package service

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/consts"
	"context"
	log "log/slog"
	"sync"
	"time"
)

// TypingService 正在输入广播
// 状态只存在于进程内存，进程重启全部清空——输入状态本来就是临时性的提示
type TypingService interface {
	StartTyping(ctx context.Context, convID, userID uint64, displayName string)
	StopTyping(ctx context.Context, convID, userID uint64)
	ActiveTypists(convID uint64) []uint64
	Close()
}

type typingEntry struct {
	displayName string
	expiresAt   time.Time
}

type typingServiceImpl struct {
	mu      sync.Mutex
	signals map[uint64]map[uint64]*typingEntry // convID -> userID -> entry
	ttl     time.Duration
	pusher  Pusher

	wg       sync.WaitGroup
	stopChan chan struct{}
}

func NewTypingService(pusher Pusher, ttl time.Duration) TypingService {
	s := &typingServiceImpl{
		signals:  make(map[uint64]map[uint64]*typingEntry),
		ttl:      ttl,
		pusher:   pusher,
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

// StartTyping 设置/刷新输入信号并广播到会话房间（不进个人频道，输入不是通知）
func (s *typingServiceImpl) StartTyping(ctx context.Context, convID, userID uint64, displayName string) {
	s.mu.Lock()
	users, ok := s.signals[convID]
	if !ok {
		users = make(map[uint64]*typingEntry)
		s.signals[convID] = users
	}
	_, refreshing := users[userID]
	users[userID] = &typingEntry{displayName: displayName, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	// 仅首次进入输入态时广播，刷新只续期
	if refreshing {
		return
	}
	s.pusher.PushToConversation(ctx, convID, &PushEvent{
		Type: consts.PushUserTyping,
		Data: &dto.TypingDTO{ConversationID: convID, UserID: userID, Username: displayName},
	})
}

// StopTyping 客户端显式结束输入
func (s *typingServiceImpl) StopTyping(ctx context.Context, convID, userID uint64) {
	s.mu.Lock()
	removed := s.remove(convID, userID)
	s.mu.Unlock()

	if removed {
		s.pusher.PushToConversation(ctx, convID, &PushEvent{
			Type: consts.PushUserStoppedTyping,
			Data: &dto.TypingDTO{ConversationID: convID, UserID: userID},
		})
	}
}

// ActiveTypists 当前仍在输入的用户（惰性剔除过期项）
func (s *typingServiceImpl) ActiveTypists(convID uint64) []uint64 {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []uint64
	for uid, entry := range s.signals[convID] {
		if entry.expiresAt.After(now) {
			res = append(res, uid)
		}
	}
	return res
}

func (s *typingServiceImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
}

// sweepLoop 周期清扫过期信号并补发 stop 事件
// 客户端丢失 typing_stop 帧时靠它自愈
func (s *typingServiceImpl) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

func (s *typingServiceImpl) sweep() {
	type expired struct {
		convID uint64
		userID uint64
	}
	now := time.Now()

	s.mu.Lock()
	var expiredList []expired
	for convID, users := range s.signals {
		for uid, entry := range users {
			if !entry.expiresAt.After(now) {
				s.remove(convID, uid)
				expiredList = append(expiredList, expired{convID: convID, userID: uid})
			}
		}
	}
	s.mu.Unlock()

	for _, e := range expiredList {
		s.pusher.PushToConversation(context.Background(), e.convID, &PushEvent{
			Type: consts.PushUserStoppedTyping,
			Data: &dto.TypingDTO{ConversationID: e.convID, UserID: e.userID},
		})
	}
	if len(expiredList) > 0 {
		log.Debug("Typing signals expired", "count", len(expiredList))
	}
}

// remove 摘除一条信号，调用方需持锁
func (s *typingServiceImpl) remove(convID, userID uint64) bool {
	users, ok := s.signals[convID]
	if !ok {
		return false
	}
	if _, ok = users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.signals, convID)
	}
	return true
}
