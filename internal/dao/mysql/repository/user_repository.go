package repository

import (
	"time"

	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户 Repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByUuid 根据 UUID 查找用户
func (r *userRepository) FindByUuid(uuid string) (*model.UserInfo, error) {
	var user model.UserInfo
	if err := r.db.Where("uuid = ?", uuid).First(&user).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户 uuid=%s", uuid)
	}
	return &user, nil
}

// FindByUuids 批量根据 UUID 查找用户
func (r *userRepository) FindByUuids(uuids []string) ([]model.UserInfo, error) {
	var users []model.UserInfo
	if err := r.db.Where("uuid IN ?", uuids).Find(&users).Error; err != nil {
		return nil, wrapDBError(err, "批量查询用户")
	}
	return users, nil
}

// FindOperators 查找所有管理员组用户
func (r *userRepository) FindOperators() ([]model.UserInfo, error) {
	var users []model.UserInfo
	if err := r.db.Where("role IN ?", []model.UserRole{model.RoleAdmin, model.RoleSuperAdmin}).
		Find(&users).Error; err != nil {
		return nil, wrapDBError(err, "查询管理员列表")
	}
	return users, nil
}

// CreateUser 创建新用户
func (r *userRepository) CreateUser(user *model.UserInfo) error {
	if err := r.db.Create(user).Error; err != nil {
		return wrapDBError(err, "创建用户")
	}
	return nil
}

// UpdateOnlineAt 记录上线时间
func (r *userRepository) UpdateOnlineAt(uuid string) error {
	if err := r.db.Model(&model.UserInfo{}).Where("uuid = ?", uuid).
		Update("last_online_at", time.Now()).Error; err != nil {
		return wrapDBErrorf(err, "更新上线时间 uuid=%s", uuid)
	}
	return nil
}

// UpdateOfflineAt 记录离线时间
func (r *userRepository) UpdateOfflineAt(uuid string) error {
	if err := r.db.Model(&model.UserInfo{}).Where("uuid = ?", uuid).
		Update("last_offline_at", time.Now()).Error; err != nil {
		return wrapDBErrorf(err, "更新离线时间 uuid=%s", uuid)
	}
	return nil
}
