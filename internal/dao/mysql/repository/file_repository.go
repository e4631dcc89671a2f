package repository

import (
	"private_chat_server/internal/model"

	"gorm.io/gorm"
)

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建文件引用 Repository
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// FindByUuid 根据 UUID 查找文件引用
func (r *fileRepository) FindByUuid(uuid string) (*model.FileInfo, error) {
	var file model.FileInfo
	if err := r.db.Where("uuid = ?", uuid).First(&file).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询文件 uuid=%s", uuid)
	}
	return &file, nil
}

// Create 创建文件引用
func (r *fileRepository) Create(file *model.FileInfo) error {
	if err := r.db.Create(file).Error; err != nil {
		return wrapDBError(err, "创建文件引用")
	}
	return nil
}
