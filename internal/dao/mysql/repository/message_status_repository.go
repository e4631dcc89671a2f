package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type messageStatusRepository struct {
	db *gorm.DB
}

// NewMessageStatusRepository 创建消息状态 Repository
func NewMessageStatusRepository(db *gorm.DB) MessageStatusRepository {
	return &messageStatusRepository{db: db}
}

// FindByMessageAndUser 查找单个状态行
func (r *messageStatusRepository) FindByMessageAndUser(messageUuid int64, userUuid string) (*model.MessageStatus, error) {
	var status model.MessageStatus
	if err := r.db.Where("message_uuid = ? AND user_uuid = ?", messageUuid, userUuid).
		First(&status).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息状态 message=%d user=%s", messageUuid, userUuid)
	}
	return &status, nil
}

// CreateBatch 为一批接收人创建 SENT 状态行
func (r *messageStatusRepository) CreateBatch(statuses []model.MessageStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	if err := r.db.Create(&statuses).Error; err != nil {
		return wrapDBError(err, "批量创建消息状态")
	}
	return nil
}

// Upsert 写入或更新状态行
// 依赖 (message_uuid, user_uuid) 唯一索引做 ON CONFLICT 更新，
// 避免读-改-写在并发下重复建行
func (r *messageStatusRepository) Upsert(messageUuid int64, userUuid string, status model.DeliveryStatus) (*model.MessageStatus, error) {
	row := model.MessageStatus{
		MessageUuid: messageUuid,
		UserUuid:    userUuid,
		Status:      status,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_uuid"}, {Name: "user_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, wrapDBErrorf(err, "更新消息状态 message=%d user=%s", messageUuid, userUuid)
	}
	return &row, nil
}

// MarkRead 批量置为 READ，返回实际影响的行数
// 未命中的 uuid 不视为错误，尽力而为
func (r *messageStatusRepository) MarkRead(messageUuids []int64) (int64, error) {
	if len(messageUuids) == 0 {
		return 0, nil
	}
	res := r.db.Model(&model.MessageStatus{}).
		Where("message_uuid IN ?", messageUuids).
		Update("status", model.StatusRead)
	if res.Error != nil {
		return 0, wrapDBError(res.Error, "批量标记已读")
	}
	return res.RowsAffected, nil
}
