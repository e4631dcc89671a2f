// Package model 定义数据库实体模型
// 本文件定义用户信息模型
package model

import (
	"database/sql"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserRole 用户角色
// 客服系统中只有两类身份：客户(CLIENT)与管理员组(ADMIN/SUPER_ADMIN)
type UserRole string

const (
	RoleClient     UserRole = "CLIENT"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// IsOperator 是否属于管理员组（会话中的 operator 角色）
func (r UserRole) IsOperator() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// UserInfo 用户信息模型
// 对应数据库 user_info 表
// 认证签发由外部服务负责，本服务只读取身份和角色
type UserInfo struct {
	gorm.Model

	// Uuid 用户唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:用户唯一id"`

	// Name 用户昵称
	Name string `gorm:"column:name;type:varchar(50);not null;comment:昵称"`

	// Email 邮箱地址
	Email string `gorm:"column:email;index;type:varchar(100);comment:邮箱"`

	// AvatarUrl 用户头像 URL
	AvatarUrl string `gorm:"column:avatar_url;type:varchar(255);comment:头像"`

	// Role 用户角色
	Role UserRole `gorm:"column:role;index;type:varchar(20);not null;default:CLIENT;comment:角色"`

	// Password 密码（已哈希）
	// 存储 bcrypt 哈希后的密码，不存储明文
	Password string `gorm:"column:password;type:varchar(100);comment:密码"`

	// LastOnlineAt 上次上线时间
	LastOnlineAt sql.NullTime `gorm:"column:last_online_at;type:datetime;comment:上次上线时间"`

	// LastOfflineAt 最近离线时间
	LastOfflineAt sql.NullTime `gorm:"column:last_offline_at;type:datetime;comment:最近离线时间"`

	// RawPassword 明文密码（不存入数据库）
	// 由外部认证服务在建档时设置，在 BeforeSave 中加密
	RawPassword string `gorm:"-" json:"-"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}

// BeforeSave GORM Hook：在创建和更新前自动调用
// 将 RawPassword 明文密码加密后存入 Password 字段
func (u *UserInfo) BeforeSave(tx *gorm.DB) (err error) {
	if u.RawPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.RawPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.Password = string(hash)
		u.RawPassword = ""
	}
	return nil
}

// CheckPassword 校验密码是否正确
func (u *UserInfo) CheckPassword(plaintext string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plaintext))
	return err == nil
}
