// Package repository 定义数据访问层接口和实现
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"private_chat_server/internal/model"
)

// ==================== Repository 接口定义 ====================

// UserRepository 用户数据访问接口
type UserRepository interface {
	// FindByUuid 根据 UUID 查找用户
	FindByUuid(uuid string) (*model.UserInfo, error)
	// FindByUuids 批量根据 UUID 查找用户
	FindByUuids(uuids []string) ([]model.UserInfo, error)
	// FindOperators 查找所有管理员组用户（ADMIN / SUPER_ADMIN）
	FindOperators() ([]model.UserInfo, error)
	// CreateUser 创建新用户
	CreateUser(user *model.UserInfo) error
	// UpdateOnlineAt 记录上线时间
	UpdateOnlineAt(uuid string) error
	// UpdateOfflineAt 记录离线时间
	UpdateOfflineAt(uuid string) error
}

// ConversationRepository 会话数据访问接口
type ConversationRepository interface {
	// FindByUuid 根据 UUID 查找会话
	FindByUuid(uuid string) (*model.Conversation, error)
	// FindByClientUuid 查找以指定客户为 USER 参与者的会话
	FindByClientUuid(clientUuid string) (*model.Conversation, error)
	// FindPage 分页获取会话列表，按最近消息时间倒序
	FindPage(page, pageSize int) ([]model.Conversation, int64, error)
	// Create 创建新会话
	Create(conversation *model.Conversation) error
	// UpdateLastMessage 更新会话的最新消息指针
	UpdateLastMessage(uuid string, messageUuid int64) error
}

// ParticipantRepository 会话参与者数据访问接口
type ParticipantRepository interface {
	// FindByConversationUuid 查找会话的所有参与者
	FindByConversationUuid(conversationUuid string) ([]model.ConversationParticipant, error)
	// FindByConversationAndUser 查找会话中的指定参与者
	FindByConversationAndUser(conversationUuid, userUuid string) (*model.ConversationParticipant, error)
	// Create 添加参与者
	Create(participant *model.ConversationParticipant) error
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// FindByUuid 根据雪花 ID 查找消息
	FindByUuid(uuid int64) (*model.Message, error)
	// FindByConversationUuid 按会话查找消息，按创建时间倒序
	FindByConversationUuid(conversationUuid string) ([]model.Message, error)
	// Create 创建消息
	Create(message *model.Message) error
}

// MessageStatusRepository 消息状态数据访问接口
// 状态行按 (message_uuid, user_uuid) 唯一
type MessageStatusRepository interface {
	// FindByMessageAndUser 查找单个状态行
	FindByMessageAndUser(messageUuid int64, userUuid string) (*model.MessageStatus, error)
	// CreateBatch 为一批接收人创建 SENT 状态行
	CreateBatch(statuses []model.MessageStatus) error
	// Upsert 写入或更新状态行，调用方给什么存什么
	Upsert(messageUuid int64, userUuid string, status model.DeliveryStatus) (*model.MessageStatus, error)
	// MarkRead 批量置为 READ，返回实际影响的行数
	MarkRead(messageUuids []int64) (int64, error)
}

// CallRepository 通话数据访问接口
type CallRepository interface {
	// FindByUuid 根据 UUID 查找通话
	FindByUuid(uuid string) (*model.Call, error)
	// FindByConversationUuid 按会话查找通话，按接通时间倒序
	FindByConversationUuid(conversationUuid string) ([]model.Call, error)
	// Create 创建通话
	Create(call *model.Call) error
	// UpdateStatus 更新通话状态（带时间戳字段）
	UpdateStatus(uuid string, updates map[string]interface{}) error
}

// CallParticipantRepository 通话参与者数据访问接口
type CallParticipantRepository interface {
	// FindByCallUuid 查找通话的所有参与者
	FindByCallUuid(callUuid string) ([]model.CallParticipant, error)
	// FindByCallAndUser 查找通话中的指定参与者
	FindByCallAndUser(callUuid, userUuid string) (*model.CallParticipant, error)
	// Create 添加参与者
	Create(participant *model.CallParticipant) error
	// CreateBatch 批量添加参与者
	CreateBatch(participants []model.CallParticipant) error
	// UpdateStatus 更新单个参与者状态（带时间戳字段）
	UpdateStatus(callUuid, userUuid string, updates map[string]interface{}) error
	// UpdateAllStatus 将通话全部参与者置为指定状态
	UpdateAllStatus(callUuid string, status model.ParticipantStatus) error
}

// FileRepository 文件引用数据访问接口
type FileRepository interface {
	// FindByUuid 根据 UUID 查找文件引用
	FindByUuid(uuid string) (*model.FileInfo, error)
	// Create 创建文件引用
	Create(file *model.FileInfo) error
}
