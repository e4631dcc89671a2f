package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type callParticipantRepository struct {
	db *gorm.DB
}

// NewCallParticipantRepository 创建通话参与者 Repository
func NewCallParticipantRepository(db *gorm.DB) CallParticipantRepository {
	return &callParticipantRepository{db: db}
}

// FindByCallUuid 查找通话的所有参与者
func (r *callParticipantRepository) FindByCallUuid(callUuid string) ([]model.CallParticipant, error) {
	var participants []model.CallParticipant
	if err := r.db.Where("call_uuid = ?", callUuid).Find(&participants).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通话参与者 call=%s", callUuid)
	}
	return participants, nil
}

// FindByCallAndUser 查找通话中的指定参与者
func (r *callParticipantRepository) FindByCallAndUser(callUuid, userUuid string) (*model.CallParticipant, error) {
	var participant model.CallParticipant
	if err := r.db.Where("call_uuid = ? AND user_uuid = ?", callUuid, userUuid).
		First(&participant).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通话参与者 call=%s user=%s", callUuid, userUuid)
	}
	return &participant, nil
}

// Create 添加参与者
func (r *callParticipantRepository) Create(participant *model.CallParticipant) error {
	if err := r.db.Create(participant).Error; err != nil {
		return wrapDBError(err, "创建通话参与者")
	}
	return nil
}

// CreateBatch 批量添加参与者
func (r *callParticipantRepository) CreateBatch(participants []model.CallParticipant) error {
	if len(participants) == 0 {
		return nil
	}
	if err := r.db.Create(&participants).Error; err != nil {
		return wrapDBError(err, "批量创建通话参与者")
	}
	return nil
}

// UpdateStatus 更新单个参与者状态（带时间戳字段）
func (r *callParticipantRepository) UpdateStatus(callUuid, userUuid string, updates map[string]interface{}) error {
	if err := r.db.Model(&model.CallParticipant{}).
		Where("call_uuid = ? AND user_uuid = ?", callUuid, userUuid).
		Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "更新通话参与者 call=%s user=%s", callUuid, userUuid)
	}
	return nil
}

// UpdateAllStatus 将通话全部参与者置为指定状态
func (r *callParticipantRepository) UpdateAllStatus(callUuid string, status model.ParticipantStatus) error {
	if err := r.db.Model(&model.CallParticipant{}).
		Where("call_uuid = ?", callUuid).
		Update("status", status).Error; err != nil {
		return wrapDBErrorf(err, "批量更新通话参与者 call=%s", callUuid)
	}
	return nil
}
