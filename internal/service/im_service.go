package service

import (
	"Classboard/internal/api/config"
	"Classboard/internal/api/dto"
	"Classboard/internal/model"
	"Classboard/internal/pkg/consts"
	"Classboard/internal/pkg/mongo"
	"Classboard/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// IMService 即时通讯服务接口定义
type IMService interface {
	SendMessage(ctx context.Context, senderID, convID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	CreateConversation(ctx context.Context, creatorID uint64, req *dto.CreateConversationReq) (*dto.ConversationDTO, error)
	GetChatHistory(ctx context.Context, userID uint64, convID uint64, lastSeq uint64, pageSize int) ([]*dto.MessageDTO, error)
	SyncMessages(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, pageSize int) ([]*dto.MessageDTO, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	GetRecipients(ctx context.Context, userID uint64) (*dto.RecipientsDTO, error)
	MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error
	AssertMember(ctx context.Context, convID, userID uint64) error
	Close()
}

type imServiceImpl struct {
	convRepo      repository.ConversationRepo
	directoryRepo repository.DirectoryRepo
	messageRepo   mongo.MessageRepo
	pusher        Pusher
	imCfg         config.IMConfig
	retryChan     chan *mongo.Message
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewIMService 构造函数：初始化服务并启动异步校准工作池
func NewIMService(
	convRepo repository.ConversationRepo,
	directoryRepo repository.DirectoryRepo,
	messageRepo mongo.MessageRepo,
	pusher Pusher,
	imCfg config.IMConfig,
) IMService {
	s := &imServiceImpl{
		convRepo:      convRepo,
		directoryRepo: directoryRepo,
		messageRepo:   messageRepo,
		pusher:        pusher,
		imCfg:         imCfg,
		retryChan:     make(chan *mongo.Message, 2048),
		stopChan:      make(chan struct{}),
	}

	workerCount := 5
	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.calibrationWorker()
	}

	return s
}

// SendMessage 发送消息
// 持久化成功即算发送成功，推送失败只降级为轮询可见
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID, convID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if len(req.Content) == 0 {
		return nil, ErrMessageEmpty
	}
	if len(req.Content) > s.imCfg.MaxContentLength {
		return nil, ErrContentTooLong
	}

	if _, err := s.convRepo.GetConversation(ctx, convID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationMissing
		}
		return nil, err
	}
	if err := s.AssertMember(ctx, convID, senderID); err != nil {
		return nil, err
	}

	// MySQL 原子定序，同时带动 last_message_at 排序
	newSeq, err := s.convRepo.IncrMaxSeq(ctx, convID, req.Content, senderID)
	if err != nil {
		return nil, err
	}

	// 构造并存入 MongoDB
	msgModel := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        req.Content,
		Seq:            newSeq,
		CreatedAt:      time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.messageRepo.SaveMessage(writeCtx, msgModel); err != nil {
		select {
		case s.retryChan <- msgModel:
		default:
		}
	}

	res := s.toMessageDTO(msgModel)
	res.ClientMsgID = req.ClientMsgID

	// 推送到会话房间（当前打开该会话的客户端）
	event := &PushEvent{Type: consts.PushNewMessage, Data: s.toMessageDTO(msgModel)}
	s.pusher.PushToConversation(context.Background(), convID, event)

	// 推送到每个成员的个人频道（未打开会话的成员刷新列表与未读数）
	memberIDs, err := s.convRepo.GetMemberIDs(ctx, convID)
	if err != nil {
		log.Error("获取会话成员失败，跳过个人频道推送", "convID", convID, "err", err)
		return res, nil
	}
	for _, uid := range memberIDs {
		if uid == senderID {
			continue
		}
		s.pusher.PushToUser(context.Background(), uid, event)
	}

	return res, nil
}

// CreateConversation 创建会话
// 单聊幂等：同一对用户重复创建返回既有会话
func (s *imServiceImpl) CreateConversation(ctx context.Context, creatorID uint64, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	switch req.Type {
	case consts.ConvTypeDirect:
		return s.getOrCreateDirect(ctx, creatorID, req.ParticipantIDs)
	case consts.ConvTypeGroup:
		return s.createGroup(ctx, creatorID, req)
	case consts.ConvTypeClass:
		return s.createClass(ctx, req)
	default:
		return nil, ErrParamInvalid
	}
}

func (s *imServiceImpl) getOrCreateDirect(ctx context.Context, creatorID uint64, participantIDs []uint64) (*dto.ConversationDTO, error) {
	// 单聊成员必须恰好是发起者与另一个用户
	targetID := uint64(0)
	for _, id := range participantIDs {
		if id == creatorID {
			continue
		}
		if targetID != 0 {
			return nil, ErrInvalidParticipants
		}
		targetID = id
	}
	if targetID == 0 {
		return nil, ErrInvalidParticipants
	}

	if _, err := s.directoryRepo.GetUser(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	conv, err := s.convRepo.GetOrCreateDirect(ctx, directPeerKey(creatorID, targetID), creatorID, targetID)
	if err != nil {
		return nil, err
	}

	d := s.toConversationDTO(conv)
	d.PeerID = targetID
	return d, nil
}

func (s *imServiceImpl) createGroup(ctx context.Context, creatorID uint64, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	memberIDs := uniqueWith(req.ParticipantIDs, creatorID)
	if len(memberIDs) < 2 {
		return nil, ErrInvalidParticipants
	}

	conv := &model.Conversation{
		Type:          consts.ConvTypeGroup,
		Name:          req.Name,
		LastMessageAt: time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, conv, memberIDs); err != nil {
		return nil, err
	}
	return s.toConversationDTO(conv), nil
}

func (s *imServiceImpl) createClass(ctx context.Context, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	if req.ClassID == 0 {
		return nil, ErrParamInvalid
	}
	exists, err := s.directoryRepo.ClassExists(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrClassNotFound
	}

	// 一个班级只有一个会话，重复创建返回既有会话
	if conv, err := s.convRepo.GetByClassID(ctx, req.ClassID); err == nil {
		return s.toConversationDTO(conv), nil
	}

	memberIDs, err := s.directoryRepo.GetClassMemberIDs(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	classID := req.ClassID
	conv := &model.Conversation{
		Type:          consts.ConvTypeClass,
		ClassID:       &classID,
		Name:          req.Name,
		LastMessageAt: time.Now(),
	}
	if err := s.convRepo.CreateConversation(ctx, conv, memberIDs); err != nil {
		return nil, err
	}
	return s.toConversationDTO(conv), nil
}

// GetChatHistory 拉取历史，按 seq 降序翻页
func (s *imServiceImpl) GetChatHistory(ctx context.Context, userID uint64, convID uint64, lastSeq uint64, pageSize int) ([]*dto.MessageDTO, error) {
	if err := s.AssertMember(ctx, convID, userID); err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = s.imCfg.HistoryPageSize
	}

	models, err := s.messageRepo.GetHistory(ctx, convID, lastSeq, pageSize)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.toMessageDTO(m))
	}
	return res, nil
}

// SyncMessages 增量同步：断线重连后以最后可见 seq 续传
func (s *imServiceImpl) SyncMessages(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, pageSize int) ([]*dto.MessageDTO, error) {
	if err := s.AssertMember(ctx, convID, userID); err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = s.imCfg.HistoryPageSize
	}

	models, err := s.messageRepo.SyncMessages(ctx, convID, afterSeq, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.toMessageDTO(m))
	}
	return res, nil
}

// GetConversationList 获取会话列表，按最近消息时间倒序
func (s *imServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	members, err := s.convRepo.GetUserConversationMemList(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConversationDTO, 0, len(members))
	for _, m := range members {
		d := s.toConversationDTO(&m.Conversation)
		d.ConversationID = m.ConversationID
		d.UnreadCount = m.UnreadCount

		if m.Conversation.Type == consts.ConvTypeDirect && m.Conversation.PeerKey != nil {
			peerID, _ := parsePeerID(*m.Conversation.PeerKey, userID)
			d.PeerID = peerID
		}
		res = append(res, d)
	}
	return res, nil
}

// GetRecipients 获取可联系对象分组：同班同学、教师、管理员
func (s *imServiceImpl) GetRecipients(ctx context.Context, userID uint64) (*dto.RecipientsDTO, error) {
	classmates, err := s.directoryRepo.GetClassmates(ctx, userID)
	if err != nil {
		return nil, err
	}
	teachers, err := s.directoryRepo.GetUsersByRole(ctx, consts.RoleTeacher)
	if err != nil {
		return nil, err
	}
	admins, err := s.directoryRepo.GetUsersByRole(ctx, consts.RoleAdmin)
	if err != nil {
		return nil, err
	}

	return &dto.RecipientsDTO{
		Classmates: toContactDTOs(classmates),
		Teachers:   toContactDTOs(teachers),
		Admins:     toContactDTOs(admins),
	}, nil
}

// MarkAsRead 标记已读进度
func (s *imServiceImpl) MarkAsRead(ctx context.Context, userID uint64, convID uint64, seq uint64) error {
	if err := s.AssertMember(ctx, convID, userID); err != nil {
		return err
	}

	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return err
	}

	targetSeq := seq
	if targetSeq > conv.MaxMsgSeq {
		targetSeq = conv.MaxMsgSeq
	}

	if err = s.convRepo.UpdateReadSeq(ctx, convID, userID, targetSeq); err != nil {
		return err
	}

	// 已读回执推送到会话房间
	receipt := &dto.ReadReceiptDTO{
		ConversationID: convID,
		UserID:         userID,
		ReadSeq:        targetSeq,
	}
	s.pusher.PushToConversation(context.Background(), convID, &PushEvent{Type: consts.PushReadReceipt, Data: receipt})

	return nil
}

// AssertMember 成员校验，消息写入与房间加入前都要通过
func (s *imServiceImpl) AssertMember(ctx context.Context, convID, userID uint64) error {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotAMember
	}
	return nil
}

func (s *imServiceImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("IMService shut down gracefully")
}

// calibrationWorker Mongo 写入失败的异步补偿
func (s *imServiceImpl) calibrationWorker() {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.retryChan:
			backoff := time.Second
			for i := 0; i < 3; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := s.messageRepo.SaveMessage(ctx, msg)
				cancel()
				if err == nil {
					break
				}
				time.Sleep(backoff)
				backoff *= 2
			}
		case <-s.stopChan:
			return
		}
	}
}

// directPeerKey 生成单聊唯一的 PeerKey（无序对归一化）
func directPeerKey(userA, userB uint64) string {
	if userA < userB {
		return fmt.Sprintf("%d_%d", userA, userB)
	}
	return fmt.Sprintf("%d_%d", userB, userA)
}

func parsePeerID(peerKey string, currentUserID uint64) (uint64, error) {
	var u1, u2 uint64
	_, err := fmt.Sscanf(peerKey, "%d_%d", &u1, &u2)
	if err != nil {
		return 0, err
	}
	if u1 == currentUserID {
		return u2, nil
	}
	return u1, nil
}

// uniqueWith 去重并确保 must 在列表内
func uniqueWith(ids []uint64, must uint64) []uint64 {
	seen := map[uint64]struct{}{must: {}}
	res := []uint64{must}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

func toContactDTOs(users []*model.User) []*dto.ContactDTO {
	res := make([]*dto.ContactDTO, 0, len(users))
	for _, u := range users {
		res = append(res, &dto.ContactDTO{
			UserID:      u.ID,
			Role:        u.Role,
			DisplayName: u.DisplayName,
		})
	}
	return res
}

func (s *imServiceImpl) toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	return &dto.MessageDTO{
		ID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID,
		Content: m.Content, Seq: m.Seq, CreatedAt: m.CreatedAt,
	}
}

func (s *imServiceImpl) toConversationDTO(conv *model.Conversation) *dto.ConversationDTO {
	d := &dto.ConversationDTO{
		ConversationID: conv.ID,
		Type:           conv.Type,
		Name:           conv.Name,
		LastMsgContent: conv.LastMsgContent,
		LastSenderID:   conv.LastSenderID,
		LastMessageAt:  conv.LastMessageAt,
	}
	if conv.ClassID != nil {
		d.ClassID = *conv.ClassID
	}
	return d
}
