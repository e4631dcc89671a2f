// Package model 定义数据库实体模型
// 本文件定义会话模型与会话参与者模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// ParticipantType 会话参与者类型
// USER 表示客户本人，ADMIN_GROUP 表示参与接待的管理员
type ParticipantType string

const (
	ParticipantUser       ParticipantType = "USER"
	ParticipantAdminGroup ParticipantType = "ADMIN_GROUP"
)

// Conversation 会话模型
// 对应数据库 conversation 表
// 一个客户对应唯一一条会话，管理员按需加入
type Conversation struct {
	gorm.Model

	// Uuid 会话唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:会话uuid"`

	// LastMessageUuid 最新消息ID
	// 指向本会话按创建顺序最新的一条消息，用于会话列表摘要
	LastMessageUuid int64 `gorm:"column:last_message_uuid;type:bigint;comment:最新消息雪花ID"`

	// LastMessageAt 最后消息时间
	// 用于会话列表排序
	LastMessageAt sql.NullTime `gorm:"column:last_message_at;type:datetime;comment:最近消息时间"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversation"
}

// ConversationParticipant 会话参与者模型
// 对应数据库 conversation_participant 表
// (conversation_uuid, user_uuid) 唯一
type ConversationParticipant struct {
	gorm.Model

	// ConversationUuid 会话 UUID
	ConversationUuid string `gorm:"column:conversation_uuid;uniqueIndex:idx_conv_user;type:char(36);not null;comment:会话uuid"`

	// UserUuid 参与者用户 UUID
	UserUuid string `gorm:"column:user_uuid;uniqueIndex:idx_conv_user;index;type:char(36);not null;comment:用户uuid"`

	// Type 参与者类型
	Type ParticipantType `gorm:"column:type;type:varchar(20);not null;comment:参与者类型"`
}

// TableName 指定表名
func (ConversationParticipant) TableName() string {
	return "conversation_participant"
}
