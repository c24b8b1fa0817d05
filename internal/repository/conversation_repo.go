package repository

import (
	"Classboard/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	GetOrCreateDirect(ctx context.Context, peerKey string, userA, userB uint64) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetByClassID(ctx context.Context, classID uint64) (*model.Conversation, error)
	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)
	AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error
	RemoveMembers(ctx context.Context, convID uint64, userIDs []uint64) error

	UpdateReadSeq(ctx context.Context, convID, userID, seq uint64) error
	IncrMaxSeq(ctx context.Context, convID uint64, lastMsg string, senderID uint64) (uint64, error)

	GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error)
	ListClassConversations(ctx context.Context) ([]*model.Conversation, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// GetOrCreateDirect 获取或创建单聊会话
// 双方同时发起时靠 peer_key 唯一索引裁决：落败方的插入被忽略，回读胜者的行，
// 两端最终拿到同一个会话 ID
func (s *conversationRepoImpl) GetOrCreateDirect(ctx context.Context, peerKey string, userA, userB uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	if err == nil {
		return &conv, nil
	}

	newConv := &model.Conversation{
		Type:          1,
		PeerKey:       &peerKey,
		LastMessageAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "peer_key"}},
			DoNothing: true,
		}).Create(newConv)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发竞争落败，回读胜者
			return nil
		}
		members := []*model.ConversationMember{
			{ConversationID: newConv.ID, UserID: userA, JoinedAt: time.Now()},
			{ConversationID: newConv.ID, UserID: userB, JoinedAt: time.Now()},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}
	if newConv.ID != 0 {
		return newConv, nil
	}

	err = s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	return &conv, err
}

// CreateConversation 开启事务创建群聊/班级会话及初始成员
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, uid := range memberIDs {
			m := &model.ConversationMember{
				ConversationID: conv.ID,
				UserID:         uid,
				JoinedAt:       time.Now(),
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	return &conv, err
}

// GetByClassID 根据班级 ID 获取班级会话
func (s *conversationRepoImpl) GetByClassID(ctx context.Context, classID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("class_id = ?", classID).First(&conv).Error
	return &conv, err
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMemberIDs 获取会话全部成员 ID（推送寻址用）
func (s *conversationRepoImpl) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AddMembers 批量加入成员（花名册对账）
func (s *conversationRepoImpl) AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]*model.ConversationMember, 0, len(userIDs))
	for _, uid := range userIDs {
		members = append(members, &model.ConversationMember{
			ConversationID: convID,
			UserID:         uid,
			JoinedAt:       time.Now(),
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
}

// RemoveMembers 批量移除成员（花名册对账）
func (s *conversationRepoImpl) RemoveMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id IN ?", convID, userIDs).
		Delete(&model.ConversationMember{}).Error
}

// UpdateReadSeq 更新用户已读进度 (已读回执)
func (s *conversationRepoImpl) UpdateReadSeq(ctx context.Context, convID, userID, seq uint64) error {
	return s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("read_msg_seq", seq).Error
}

// IncrMaxSeq 核心定序逻辑：利用 MySQL 行锁确保 Seq 绝对递增
// 锁粒度是单个会话行，不同会话互不阻塞
func (s *conversationRepoImpl) IncrMaxSeq(ctx context.Context, convID uint64, lastMsg string, senderID uint64) (uint64, error) {
	var maxSeq uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 原子更新序列号与预览信息
		err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Updates(map[string]interface{}{
				"max_msg_seq":      gorm.Expr("max_msg_seq + 1"),
				"last_msg_content": lastMsg,
				"last_sender_id":   senderID,
				"last_message_at":  time.Now(),
			}).Error
		if err != nil {
			return err
		}

		// 读取并返回自增后的最新 Seq
		return tx.Model(&model.Conversation{}).Select("max_msg_seq").Where("id = ?", convID).Scan(&maxSeq).Error
	})
	return maxSeq, err
}

// GetUserConversationMemList 联表查询，利用嵌套 Model 自动装配
func (s *conversationRepoImpl) GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	// 使用 Conversation__ 别名配合 GORM 的嵌套填充特性
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, c.type AS `Conversation__type`, "+
			"c.peer_key AS `Conversation__peer_key`, "+
			"c.class_id AS `Conversation__class_id`, "+
			"c.name AS `Conversation__name`, "+
			"c.max_msg_seq AS `Conversation__max_msg_seq`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_sender_id AS `Conversation__last_sender_id`, "+
			"c.last_message_at AS `Conversation__last_message_at`, "+
			"(c.max_msg_seq - m.read_msg_seq) AS unread_count").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.last_message_at DESC").
		Find(&members).Error
	return members, err
}

// ListClassConversations 列出所有班级会话（定时对账用）
func (s *conversationRepoImpl) ListClassConversations(ctx context.Context) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := s.db.WithContext(ctx).Where("class_id IS NOT NULL").Find(&convs).Error
	return convs, err
}
