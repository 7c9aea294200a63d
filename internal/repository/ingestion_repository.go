// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"ragpipe-go/internal/model"
)

// IngestionRepository 接口定义了导入登记记录的持久化操作。
type IngestionRepository interface {
	Create(record *model.IngestionRecord) error
	FindByID(id uint) (*model.IngestionRecord, error)
	FindByName(name string) (*model.IngestionRecord, error)
	DeleteByID(id uint) error
	FindWithPagination(offset, limit int) ([]model.IngestionRecord, int64, error)
	FindByCollection(collectionID uint) ([]model.IngestionRecord, error)
	CountByCollection(collectionID uint) (int64, error)
}

// ingestionRepository 是 IngestionRepository 接口的 GORM 实现。
type ingestionRepository struct {
	db *gorm.DB
}

// NewIngestionRepository 创建一个新的 IngestionRepository 实例。
func NewIngestionRepository(db *gorm.DB) IngestionRepository {
	return &ingestionRepository{db: db}
}

// Create 在数据库中创建一条新的登记记录。
func (r *ingestionRepository) Create(record *model.IngestionRecord) error {
	return r.db.Create(record).Error
}

// FindByID 根据 ID 查找一条登记记录。
func (r *ingestionRepository) FindByID(id uint) (*model.IngestionRecord, error) {
	var record model.IngestionRecord
	err := r.db.First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByName 根据名称查找最近的一条登记记录。
func (r *ingestionRepository) FindByName(name string) (*model.IngestionRecord, error) {
	var record model.IngestionRecord
	err := r.db.Where("name = ?", name).Order("created_at DESC").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteByID 根据 ID 删除一条登记记录。
func (r *ingestionRepository) DeleteByID(id uint) error {
	return r.db.Delete(&model.IngestionRecord{}, id).Error
}

// FindWithPagination 分页检索登记记录。
// 它返回记录列表、总记录数和可能发生的错误。
func (r *ingestionRepository) FindWithPagination(offset, limit int) ([]model.IngestionRecord, int64, error) {
	var records []model.IngestionRecord
	var total int64

	db := r.db.Model(&model.IngestionRecord{})

	// 首先计算总记录数
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 然后根据偏移量和限制获取当前页的数据
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// FindByCollection 查找属于指定集合的所有登记记录。
func (r *ingestionRepository) FindByCollection(collectionID uint) ([]model.IngestionRecord, error) {
	var records []model.IngestionRecord
	err := r.db.Where("collection_id = ?", collectionID).Find(&records).Error
	return records, err
}

// CountByCollection 统计属于指定集合的登记记录数。
func (r *ingestionRepository) CountByCollection(collectionID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.IngestionRecord{}).Where("collection_id = ?", collectionID).Count(&count).Error
	return count, err
}
