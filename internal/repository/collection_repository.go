package repository

import (
	"gorm.io/gorm"

	"ragpipe-go/internal/model"
)

// CollectionRepository 接口定义了知识库集合的持久化操作。
type CollectionRepository interface {
	Create(collection *model.KBCollection) error
	FindByID(id uint) (*model.KBCollection, error)
	FindAll() ([]model.KBCollection, error)
	FindChildren(parentID uint) ([]model.KBCollection, error)
	DeleteByID(id uint) error
}

// collectionRepository 是 CollectionRepository 接口的 GORM 实现。
type collectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository 创建一个新的 CollectionRepository 实例。
func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

// Create 在数据库中创建一个新的集合。
func (r *collectionRepository) Create(collection *model.KBCollection) error {
	return r.db.Create(collection).Error
}

// FindByID 根据 ID 查找一个集合。
func (r *collectionRepository) FindByID(id uint) (*model.KBCollection, error) {
	var collection model.KBCollection
	err := r.db.First(&collection, id).Error
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

// FindAll 检索所有集合。
func (r *collectionRepository) FindAll() ([]model.KBCollection, error) {
	var collections []model.KBCollection
	err := r.db.Find(&collections).Error
	return collections, err
}

// FindChildren 查找指定集合的直接子集合。
func (r *collectionRepository) FindChildren(parentID uint) ([]model.KBCollection, error) {
	var collections []model.KBCollection
	err := r.db.Where("parent_id = ?", parentID).Find(&collections).Error
	return collections, err
}

// DeleteByID 根据 ID 删除一个集合。
func (r *collectionRepository) DeleteByID(id uint) error {
	return r.db.Delete(&model.KBCollection{}, id).Error
}
