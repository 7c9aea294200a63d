// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"encoding/json"
	"time"
)

// IngestionRecord 对应于数据库中的 ingestion_records 表。
// 每次成功导入写入一条，记录该批向量的名称、数量与精确的向量 ID 列表。
// 保留 ID 列表（而不是只存数量）是为了让删除不依赖 "{name}_0..{name}_{count-1}"
// 的区间重建：抽取阶段跳过空记录时索引可能有洞，区间重建会漏删或多删。
type IngestionRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;index" json:"name"`
	VectorCount int       `gorm:"not null" json:"vectorCount"`
	VectorIDs   string    `gorm:"type:text" json:"-"` // JSON 数组
	DriveLink   string    `gorm:"type:varchar(512)" json:"driveLink,omitempty"`
	Namespace   string    `gorm:"type:varchar(100)" json:"namespace,omitempty"`
	CollectionID *uint    `gorm:"index" json:"collectionId,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IngestionRecord) TableName() string {
	return "ingestion_records"
}

// IDList 反序列化存储的向量 ID 列表。字段为空时返回 nil。
func (r *IngestionRecord) IDList() ([]string, error) {
	if r.VectorIDs == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(r.VectorIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetIDList 序列化并保存向量 ID 列表。
func (r *IngestionRecord) SetIDList(ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	r.VectorIDs = string(b)
	return nil
}

// KBCollection 对应于数据库中的 kb_collections 表。
// 它将登记记录按“文件夹”组织，支持层级结构。ParentID 使用指针以接受
// NULL 值，表示顶级文件夹。
type KBCollection struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	ParentID  *uint     `gorm:"index" json:"parentId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (KBCollection) TableName() string {
	return "kb_collections"
}
