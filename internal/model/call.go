// Package model 定义数据库实体模型
// 本文件定义通话模型与通话参与者模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// CallType 通话类型
type CallType string

const (
	CallAudio CallType = "AUDIO"
	CallVideo CallType = "VIDEO"
)

// CallStatus 通话状态
// 固定格：INITIATED -> ONGOING -> {ENDED, MISSED}，ENDED/MISSED 为终态
type CallStatus string

const (
	CallInitiated CallStatus = "INITIATED"
	CallOngoing   CallStatus = "ONGOING"
	CallEnded     CallStatus = "ENDED"
	CallMissed    CallStatus = "MISSED"
)

// Terminal 是否为终态
func (s CallStatus) Terminal() bool {
	return s == CallEnded || s == CallMissed
}

// ParticipantStatus 通话参与者状态
type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "JOINED"
	ParticipantMissed ParticipantStatus = "MISSED"
	ParticipantLeft   ParticipantStatus = "LEFT"
)

// Call 通话模型
// 对应数据库 call 表
type Call struct {
	gorm.Model

	// Uuid 通话唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:通话uuid"`

	// ConversationUuid 所属会话 UUID
	ConversationUuid string `gorm:"column:conversation_uuid;index;type:char(36);not null;comment:会话uuid"`

	// InitiatorUuid 发起者 UUID
	InitiatorUuid string `gorm:"column:initiator_uuid;type:char(36);not null;comment:发起者uuid"`

	// Type 通话类型
	Type CallType `gorm:"column:type;type:varchar(10);not null;comment:通话类型"`

	// Status 通话状态
	Status CallStatus `gorm:"column:status;index;type:varchar(20);not null;default:INITIATED;comment:通话状态"`

	// StartedAt 接通时间（首次 accept 时写入）
	StartedAt sql.NullTime `gorm:"column:started_at;type:datetime;comment:接通时间"`

	// EndedAt 结束时间（进入终态时写入）
	EndedAt sql.NullTime `gorm:"column:ended_at;type:datetime;comment:结束时间"`
}

// TableName 指定表名
func (Call) TableName() string {
	return "call"
}

// CallParticipant 通话参与者模型
// 对应数据库 call_participant 表
// (call_uuid, user_uuid) 唯一，重复加入只更新不新增
type CallParticipant struct {
	gorm.Model

	// CallUuid 通话 UUID
	CallUuid string `gorm:"column:call_uuid;uniqueIndex:idx_call_user;type:char(36);not null;comment:通话uuid"`

	// UserUuid 参与者 UUID
	UserUuid string `gorm:"column:user_uuid;uniqueIndex:idx_call_user;index;type:char(36);not null;comment:用户uuid"`

	// Status 参与状态
	Status ParticipantStatus `gorm:"column:status;type:varchar(20);not null;comment:参与状态"`

	// JoinedAt 加入时间
	JoinedAt sql.NullTime `gorm:"column:joined_at;type:datetime;comment:加入时间"`

	// LeftAt 离开时间
	LeftAt sql.NullTime `gorm:"column:left_at;type:datetime;comment:离开时间"`
}

// TableName 指定表名
func (CallParticipant) TableName() string {
	return "call_participant"
}
