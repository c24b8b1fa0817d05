package service

import (
	"Classboard/internal/model"
	"Classboard/internal/pkg/mongo"
	"Classboard/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// 内存假实现，行为对齐各仓储的约定（唯一键、幂等写、排序）

type pushedEvent struct {
	targetID uint64
	event    *PushEvent
}

type fakePusher struct {
	mu         sync.Mutex
	userEvents []pushedEvent
	convEvents []pushedEvent
}

func (s *fakePusher) PushToUser(ctx context.Context, userID uint64, event *PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userEvents = append(s.userEvents, pushedEvent{targetID: userID, event: event})
}

func (s *fakePusher) PushToConversation(ctx context.Context, convID uint64, event *PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convEvents = append(s.convEvents, pushedEvent{targetID: convID, event: event})
}

func (s *fakePusher) userEventsOf(userID uint64, eventType string) []*PushEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*PushEvent
	for _, e := range s.userEvents {
		if e.targetID == userID && e.event.Type == eventType {
			res = append(res, e.event)
		}
	}
	return res
}

func (s *fakePusher) convEventsOf(convID uint64, eventType string) []*PushEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*PushEvent
	for _, e := range s.convEvents {
		if e.targetID == convID && e.event.Type == eventType {
			res = append(res, e.event)
		}
	}
	return res
}

type memberKey struct {
	convID uint64
	userID uint64
}

type fakeConvRepo struct {
	mu      sync.Mutex
	nextID  uint64
	convs   map[uint64]*model.Conversation
	members map[memberKey]*model.ConversationMember
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:   make(map[uint64]*model.Conversation),
		members: make(map[memberKey]*model.ConversationMember),
	}
}

var _ repository.ConversationRepo = (*fakeConvRepo)(nil)

func (s *fakeConvRepo) GetOrCreateDirect(ctx context.Context, peerKey string, userA, userB uint64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.PeerKey != nil && *c.PeerKey == peerKey {
			cp := *c
			return &cp, nil
		}
	}
	s.nextID++
	key := peerKey
	conv := &model.Conversation{ID: s.nextID, Type: 1, PeerKey: &key, LastMessageAt: time.Now()}
	s.convs[conv.ID] = conv
	s.members[memberKey{conv.ID, userA}] = &model.ConversationMember{ConversationID: conv.ID, UserID: userA, JoinedAt: time.Now()}
	s.members[memberKey{conv.ID, userB}] = &model.ConversationMember{ConversationID: conv.ID, UserID: userB, JoinedAt: time.Now()}
	cp := *conv
	return &cp, nil
}

func (s *fakeConvRepo) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	conv.ID = s.nextID
	cp := *conv
	s.convs[conv.ID] = &cp
	for _, uid := range memberIDs {
		s.members[memberKey{conv.ID, uid}] = &model.ConversationMember{ConversationID: conv.ID, UserID: uid, JoinedAt: time.Now()}
	}
	return nil
}

func (s *fakeConvRepo) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeConvRepo) GetByClassID(ctx context.Context, classID uint64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.convs {
		if c.ClassID != nil && *c.ClassID == classID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeConvRepo) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[memberKey{convID, userID}]
	return ok, nil
}

func (s *fakeConvRepo) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for k := range s.members {
		if k.convID == convID {
			ids = append(ids, k.userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeConvRepo) AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range userIDs {
		k := memberKey{convID, uid}
		if _, ok := s.members[k]; ok {
			continue
		}
		s.members[k] = &model.ConversationMember{ConversationID: convID, UserID: uid, JoinedAt: time.Now()}
	}
	return nil
}

func (s *fakeConvRepo) RemoveMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range userIDs {
		delete(s.members, memberKey{convID, uid})
	}
	return nil
}

func (s *fakeConvRepo) UpdateReadSeq(ctx context.Context, convID, userID, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[memberKey{convID, userID}]; ok {
		m.ReadMsgSeq = seq
	}
	return nil
}

func (s *fakeConvRepo) IncrMaxSeq(ctx context.Context, convID uint64, lastMsg string, senderID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	c.MaxMsgSeq++
	c.LastMsgContent = lastMsg
	c.LastSenderID = senderID
	c.LastMessageAt = time.Now()
	return c.MaxMsgSeq, nil
}

func (s *fakeConvRepo) GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.ConversationMember
	for k, m := range s.members {
		if k.userID != userID {
			continue
		}
		cp := *m
		conv := s.convs[k.convID]
		cp.Conversation = *conv
		cp.UnreadCount = conv.MaxMsgSeq - m.ReadMsgSeq
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Conversation.LastMessageAt.After(res[j].Conversation.LastMessageAt)
	})
	return res, nil
}

func (s *fakeConvRepo) ListClassConversations(ctx context.Context) ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.Conversation
	for _, c := range s.convs {
		if c.ClassID != nil {
			cp := *c
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (s *fakeConvRepo) readSeqOf(convID, userID uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[memberKey{convID, userID}]; ok {
		return m.ReadMsgSeq
	}
	return 0
}

type fakeDirectoryRepo struct {
	users        map[uint64]*model.User
	classes      map[uint64]string
	classMembers map[uint64][]uint64
}

func newFakeDirectoryRepo() *fakeDirectoryRepo {
	return &fakeDirectoryRepo{
		users:        make(map[uint64]*model.User),
		classes:      make(map[uint64]string),
		classMembers: make(map[uint64][]uint64),
	}
}

var _ repository.DirectoryRepo = (*fakeDirectoryRepo)(nil)

func (s *fakeDirectoryRepo) addUser(id uint64, role, name string) {
	s.users[id] = &model.User{ID: id, Role: role, DisplayName: name}
}

func (s *fakeDirectoryRepo) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (s *fakeDirectoryRepo) GetUsersByIDs(ctx context.Context, userIDs []uint64) ([]*model.User, error) {
	var res []*model.User
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (s *fakeDirectoryRepo) ClassExists(ctx context.Context, classID uint64) (bool, error) {
	_, ok := s.classes[classID]
	return ok, nil
}

func (s *fakeDirectoryRepo) GetClassMemberIDs(ctx context.Context, classID uint64) ([]uint64, error) {
	return s.classMembers[classID], nil
}

func (s *fakeDirectoryRepo) GetClassmates(ctx context.Context, userID uint64) ([]*model.User, error) {
	seen := map[uint64]struct{}{}
	var res []*model.User
	for _, members := range s.classMembers {
		mine := false
		for _, id := range members {
			if id == userID {
				mine = true
				break
			}
		}
		if !mine {
			continue
		}
		for _, id := range members {
			u, ok := s.users[id]
			if !ok || id == userID || u.Role != "STUDENT" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res = append(res, u)
		}
	}
	return res, nil
}

func (s *fakeDirectoryRepo) GetUsersByRole(ctx context.Context, role string) ([]*model.User, error) {
	var res []*model.User
	for _, u := range s.users {
		if u.Role == role {
			res = append(res, u)
		}
	}
	return res, nil
}

type msgKey struct {
	convID uint64
	seq    uint64
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[msgKey]*mongo.Message
	failures int // 前 N 次写入返回错误，模拟 Mongo 抖动
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[msgKey]*mongo.Message)}
}

var _ mongo.MessageRepo = (*fakeMessageRepo)(nil)

func (s *fakeMessageRepo) SaveMessage(ctx context.Context, msg *mongo.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("mongo write failed")
	}
	k := msgKey{msg.ConversationID, msg.Seq}
	if _, ok := s.messages[k]; ok {
		// 唯一索引去重，重复写按成功处理
		return nil
	}
	cp := *msg
	s.messages[k] = &cp
	return nil
}

func (s *fakeMessageRepo) GetHistory(ctx context.Context, convID uint64, lastSeq uint64, pageSize int) ([]*mongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*mongo.Message
	for k, m := range s.messages {
		if k.convID != convID {
			continue
		}
		if lastSeq > 0 && k.seq >= lastSeq {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq > res[j].Seq })
	if len(res) > pageSize {
		res = res[:pageSize]
	}
	return res, nil
}

func (s *fakeMessageRepo) SyncMessages(ctx context.Context, convID uint64, afterSeq uint64, pageSize int) ([]*mongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*mongo.Message
	for k, m := range s.messages {
		if k.convID != convID || k.seq <= afterSeq {
			continue
		}
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	if len(res) > pageSize {
		res = res[:pageSize]
	}
	return res, nil
}

func (s *fakeMessageRepo) GetMessageBySeq(ctx context.Context, convID uint64, seq uint64) (*mongo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[msgKey{convID, seq}]
	if !ok {
		return nil, mongoDB.ErrNoDocuments
	}
	return m, nil
}

func (s *fakeMessageRepo) count(convID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.messages {
		if k.convID == convID {
			n++
		}
	}
	return n
}

type noticeKey struct {
	eventID     string
	recipientID uint64
}

type fakeNotificationRepo struct {
	mu       sync.Mutex
	records  map[noticeKey]*mongo.NotificationModel
	failures int // 前 N 次批量写入整体失败，模拟 Mongo 抖动
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{records: make(map[noticeKey]*mongo.NotificationModel)}
}

var _ mongo.NotificationRepo = (*fakeNotificationRepo)(nil)

func (s *fakeNotificationRepo) CreateBatch(ctx context.Context, list []*mongo.NotificationModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("mongo bulk write failed")
	}
	for _, n := range list {
		k := noticeKey{n.EventID, n.RecipientID}
		if _, ok := s.records[k]; ok {
			// 幂等键命中，忽略重复项
			continue
		}
		cp := *n
		cp.ID = primitive.NewObjectID()
		n.ID = cp.ID
		s.records[k] = &cp
	}
	return nil
}

func (s *fakeNotificationRepo) GetNotificationList(ctx context.Context, userID uint64, limit, offset int64) ([]*mongo.NotificationModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*mongo.NotificationModel
	for _, n := range s.records {
		if n.RecipientID == userID {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if offset > 0 {
		if int(offset) >= len(res) {
			return nil, nil
		}
		res = res[offset:]
	}
	if int64(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *fakeNotificationRepo) MarkAsRead(ctx context.Context, userID uint64, msgID string) error {
	objectID, err := primitive.ObjectIDFromHex(msgID)
	if err != nil {
		return mongoDB.ErrInvalidIndexValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.records {
		if n.ID == objectID && n.RecipientID == userID {
			now := time.Now()
			n.IsRead = true
			n.ReadAt = &now
			return nil
		}
	}
	return mongoDB.ErrNoDocuments
}

func (s *fakeNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	now := time.Now()
	for _, n := range s.records {
		if n.RecipientID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (s *fakeNotificationRepo) GetUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.records {
		if n.RecipientID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *fakeNotificationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*mongo.NotificationModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.records {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, mongoDB.ErrNoDocuments
}

func (s *fakeNotificationRepo) recordsOf(eventID string) []*mongo.NotificationModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*mongo.NotificationModel
	for k, n := range s.records {
		if k.eventID == eventID {
			res = append(res, n)
		}
	}
	return res
}
