// Package model 定义数据库实体模型
// 本文件定义文件引用模型，文件本体由外部对象存储负责
package model

import (
	"gorm.io/gorm"
)

// FileInfo 文件引用模型
// 对应数据库 file_info 表
// 只保存访问链接与元信息，上传与转码在本服务边界之外完成
type FileInfo struct {
	gorm.Model

	// Uuid 文件唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:文件uuid"`

	// Url 访问链接
	Url string `gorm:"column:url;type:varchar(255);not null;comment:文件url"`

	// FileType 业务类型，如 IMAGE、DOCUMENT
	FileType string `gorm:"column:file_type;type:varchar(20);comment:文件类型"`

	// MimeType MIME 类型，如 "image/jpeg"
	MimeType string `gorm:"column:mime_type;type:varchar(50);comment:MIME类型"`

	// FileName 原始文件名
	FileName string `gorm:"column:file_name;type:varchar(100);comment:文件名"`

	// FileSize 文件大小（字节）
	FileSize int64 `gorm:"column:file_size;comment:文件大小"`
}

// TableName 指定表名
func (FileInfo) TableName() string {
	return "file_info"
}
