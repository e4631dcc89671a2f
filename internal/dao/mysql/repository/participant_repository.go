package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type participantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository 创建会话参与者 Repository
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

// FindByConversationUuid 查找会话的所有参与者
func (r *participantRepository) FindByConversationUuid(conversationUuid string) ([]model.ConversationParticipant, error) {
	var participants []model.ConversationParticipant
	if err := r.db.Where("conversation_uuid = ?", conversationUuid).
		Find(&participants).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话参与者 conversation=%s", conversationUuid)
	}
	return participants, nil
}

// FindByConversationAndUser 查找会话中的指定参与者
func (r *participantRepository) FindByConversationAndUser(conversationUuid, userUuid string) (*model.ConversationParticipant, error) {
	var participant model.ConversationParticipant
	if err := r.db.Where("conversation_uuid = ? AND user_uuid = ?", conversationUuid, userUuid).
		First(&participant).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询参与者 conversation=%s user=%s", conversationUuid, userUuid)
	}
	return &participant, nil
}

// Create 添加参与者
func (r *participantRepository) Create(participant *model.ConversationParticipant) error {
	if err := r.db.Create(participant).Error; err != nil {
		return wrapDBError(err, "创建会话参与者")
	}
	return nil
}
