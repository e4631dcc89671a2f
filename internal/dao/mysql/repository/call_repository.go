package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type callRepository struct {
	db *gorm.DB
}

// NewCallRepository 创建通话 Repository
func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

// FindByUuid 根据 UUID 查找通话
func (r *callRepository) FindByUuid(uuid string) (*model.Call, error) {
	var call model.Call
	if err := r.db.Where("uuid = ?", uuid).First(&call).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通话 uuid=%s", uuid)
	}
	return &call, nil
}

// FindByConversationUuid 按会话查找通话，按接通时间倒序
func (r *callRepository) FindByConversationUuid(conversationUuid string) ([]model.Call, error) {
	var calls []model.Call
	if err := r.db.Where("conversation_uuid = ?", conversationUuid).
		Order("started_at DESC").Find(&calls).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通话 conversation=%s", conversationUuid)
	}
	return calls, nil
}

// Create 创建通话
func (r *callRepository) Create(call *model.Call) error {
	if err := r.db.Create(call).Error; err != nil {
		return wrapDBError(err, "创建通话")
	}
	return nil
}

// UpdateStatus 更新通话状态（带时间戳字段）
func (r *callRepository) UpdateStatus(uuid string, updates map[string]interface{}) error {
	if err := r.db.Model(&model.Call{}).Where("uuid = ?", uuid).
		Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "更新通话状态 uuid=%s", uuid)
	}
	return nil
}
