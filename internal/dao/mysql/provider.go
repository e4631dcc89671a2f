// Package mysql 提供 Repository 层聚合与构造
package mysql

import (
	"gorm.io/gorm"

	"private_chat_server/internal/dao/mysql/repository"
)

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db              *gorm.DB
	User            repository.UserRepository
	Conversation    repository.ConversationRepository
	Participant     repository.ParticipantRepository
	Message         repository.MessageRepository
	MessageStatus   repository.MessageStatusRepository
	Call            repository.CallRepository
	CallParticipant repository.CallParticipantRepository
	File            repository.FileRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:              db,
		User:            repository.NewUserRepository(db),
		Conversation:    repository.NewConversationRepository(db),
		Participant:     repository.NewParticipantRepository(db),
		Message:         repository.NewMessageRepository(db),
		MessageStatus:   repository.NewMessageStatusRepository(db),
		Call:            repository.NewCallRepository(db),
		CallParticipant: repository.NewCallParticipantRepository(db),
		File:            repository.NewFileRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
// fn 接收事务内的 Repositories 实例
// 未绑定数据库的实例（单测注入桩实现时）直接原地执行
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
