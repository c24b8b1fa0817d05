package repository

import (
	"Classboard/internal/model"
	"Classboard/internal/pkg/consts"
	"context"

	"gorm.io/gorm"
)

// DirectoryRepo 通讯录只读视图：用户、班级与花名册由教务系统维护
type DirectoryRepo interface {
	GetUser(ctx context.Context, userID uint64) (*model.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []uint64) ([]*model.User, error)
	ClassExists(ctx context.Context, classID uint64) (bool, error)
	GetClassMemberIDs(ctx context.Context, classID uint64) ([]uint64, error)
	GetClassmates(ctx context.Context, userID uint64) ([]*model.User, error)
	GetUsersByRole(ctx context.Context, role string) ([]*model.User, error)
}

type directoryRepoImpl struct {
	db *gorm.DB
}

func NewDirectoryRepo(db *gorm.DB) DirectoryRepo {
	return &directoryRepoImpl{db: db}
}

// GetUser 根据 ID 获取用户
func (s *directoryRepoImpl) GetUser(ctx context.Context, userID uint64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	return &user, err
}

// GetUsersByIDs 批量获取用户
func (s *directoryRepoImpl) GetUsersByIDs(ctx context.Context, userIDs []uint64) ([]*model.User, error) {
	var users []*model.User
	if len(userIDs) == 0 {
		return users, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error
	return users, err
}

// ClassExists 检查班级是否存在
func (s *directoryRepoImpl) ClassExists(ctx context.Context, classID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Class{}).
		Where("id = ?", classID).
		Count(&count).Error
	return count > 0, err
}

// GetClassMemberIDs 获取班级花名册全部成员 ID（含授课教师）
func (s *directoryRepoImpl) GetClassMemberIDs(ctx context.Context, classID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ClassMember{}).
		Where("class_id = ?", classID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// GetClassmates 获取与用户同班的所有学生（去重，不含本人）
func (s *directoryRepoImpl) GetClassmates(ctx context.Context, userID uint64) ([]*model.User, error) {
	var users []*model.User
	err := s.db.WithContext(ctx).Table("users u").
		Select("DISTINCT u.*").
		Joins("JOIN class_members cm ON cm.user_id = u.id").
		Joins("JOIN class_members mine ON mine.class_id = cm.class_id").
		Where("mine.user_id = ? AND u.id != ? AND u.role = ?", userID, userID, consts.RoleStudent).
		Find(&users).Error
	return users, err
}

// GetUsersByRole 按角色列出用户（教师/管理员联系人分组）
func (s *directoryRepoImpl) GetUsersByRole(ctx context.Context, role string) ([]*model.User, error) {
	var users []*model.User
	err := s.db.WithContext(ctx).Where("role = ?", role).Find(&users).Error
	return users, err
}
