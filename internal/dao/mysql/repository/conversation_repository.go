package repository

import (
	"time"

	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话 Repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindByUuid 根据 UUID 查找会话
func (r *conversationRepository) FindByUuid(uuid string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("uuid = ?", uuid).First(&conversation).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 uuid=%s", uuid)
	}
	return &conversation, nil
}

// FindByClientUuid 查找以指定客户为 USER 参与者的会话
// 通过参与者表联查，一个客户最多对应一条会话
func (r *conversationRepository) FindByClientUuid(clientUuid string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.
		Joins("JOIN conversation_participant ON conversation_participant.conversation_uuid = conversation.uuid").
		Where("conversation_participant.user_uuid = ? AND conversation_participant.type = ?",
			clientUuid, model.ParticipantUser).
		First(&conversation).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询客户会话 client=%s", clientUuid)
	}
	return &conversation, nil
}

// FindPage 分页获取会话列表，按最近消息时间倒序
func (r *conversationRepository) FindPage(page, pageSize int) ([]model.Conversation, int64, error) {
	var conversations []model.Conversation
	var total int64
	if err := r.db.Model(&model.Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, wrapDBError(err, "统计会话数量")
	}
	if err := r.db.Order("last_message_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&conversations).Error; err != nil {
		return nil, 0, wrapDBError(err, "分页查询会话")
	}
	return conversations, total, nil
}

// Create 创建新会话
func (r *conversationRepository) Create(conversation *model.Conversation) error {
	if err := r.db.Create(conversation).Error; err != nil {
		return wrapDBError(err, "创建会话")
	}
	return nil
}

// UpdateLastMessage 更新会话的最新消息指针
func (r *conversationRepository) UpdateLastMessage(uuid string, messageUuid int64) error {
	if err := r.db.Model(&model.Conversation{}).Where("uuid = ?", uuid).
		Updates(map[string]interface{}{
			"last_message_uuid": messageUuid,
			"last_message_at":   time.Now(),
		}).Error; err != nil {
		return wrapDBErrorf(err, "更新会话最新消息 uuid=%s", uuid)
	}
	return nil
}
