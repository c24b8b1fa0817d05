package model

import "time"

// 以下表由教务系统维护，本服务只读（通讯录解析与班级花名册）。

// User 用户表
type User struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Role        string    `gorm:"type:varchar(16);index" json:"role"` // ADMIN / TEACHER / STUDENT
	DisplayName string    `gorm:"type:varchar(64)" json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }

// Class 班级表
type Class struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(64)" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Class) TableName() string { return "classes" }

// ClassMember 班级花名册（含授课教师）
type ClassMember struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ClassID uint64 `gorm:"uniqueIndex:idx_class_user" json:"classId"`
	UserID  uint64 `gorm:"uniqueIndex:idx_class_user;index" json:"userId"`
}

func (ClassMember) TableName() string { return "class_members" }
