package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// FindByUuid 根据雪花 ID 查找消息
func (r *messageRepository) FindByUuid(uuid int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("uuid = ?", uuid).First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &message, nil
}

// FindByConversationUuid 按会话查找消息，按创建时间倒序
func (r *messageRepository) FindByConversationUuid(conversationUuid string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("conversation_uuid = ?", conversationUuid).
		Order("created_at DESC").Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 conversation=%s", conversationUuid)
	}
	return messages, nil
}

// Create 创建消息
func (r *messageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}
