// Package model 定义数据库实体模型
// 本文件定义消息模型与按接收人维度的消息状态模型
package model

import (
	"gorm.io/gorm"
)

// MessageType 消息类型
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageFile   MessageType = "FILE"
	MessageSystem MessageType = "SYSTEM"
)

// DeliveryStatus 按接收人维度的消息状态
// 单调推进：SENT -> DELIVERED -> READ，不允许回退
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
)

// Rank 状态序号，用于单调性比较
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// Valid 是否为合法状态值
func (s DeliveryStatus) Valid() bool {
	return s.Rank() >= 0
}

// Message 消息模型
// 对应数据库 message 表
// 消息创建后不可变，可变的只有派生出的 MessageStatus 行
type Message struct {
	gorm.Model

	// Uuid 消息唯一标识
	// 使用雪花算法生成的 int64 类型 ID
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	// ConversationUuid 会话 UUID
	// 每条消息属于且仅属于一个会话
	ConversationUuid string `gorm:"column:conversation_uuid;index;type:char(36);not null;comment:会话uuid"`

	// SenderUuid 发送者 UUID
	SenderUuid string `gorm:"column:sender_uuid;index;type:char(36);not null;comment:发送者uuid"`

	// Type 消息类型
	Type MessageType `gorm:"column:type;type:varchar(20);not null;default:TEXT;comment:消息类型"`

	// Content 消息文本内容
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// FileUuid 附件文件 UUID
	// 文件消息时指向 file_info 表，文件本体存储在外部对象存储
	FileUuid string `gorm:"column:file_uuid;type:char(36);comment:附件uuid"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}

// MessageStatus 消息状态模型
// 对应数据库 message_status 表
// (message_uuid, user_uuid) 唯一，每个接收人一行
type MessageStatus struct {
	gorm.Model

	// MessageUuid 消息雪花 ID
	MessageUuid int64 `gorm:"column:message_uuid;uniqueIndex:idx_msg_user;type:bigint;not null;comment:消息雪花ID"`

	// UserUuid 接收人 UUID
	UserUuid string `gorm:"column:user_uuid;uniqueIndex:idx_msg_user;index;type:char(36);not null;comment:接收人uuid"`

	// Status 投递状态
	Status DeliveryStatus `gorm:"column:status;type:varchar(20);not null;default:SENT;comment:投递状态"`
}

// TableName 指定表名
func (MessageStatus) TableName() string {
	return "message_status"
}
