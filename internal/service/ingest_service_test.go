package service

import (
	"context"
	"testing"

	"ragpipe-go/internal/model"
	"ragpipe-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memIndex 是内存里的向量索引, 只为删除路径服务。
type memIndex struct {
	docs map[string]model.VectorDocument
}

func newMemIndex(ids ...string) *memIndex {
	m := &memIndex{docs: make(map[string]model.VectorDocument)}
	for _, id := range ids {
		m.docs[id] = model.VectorDocument{VectorID: id}
	}
	return m
}

func (m *memIndex) Upsert(ctx context.Context, docs []model.VectorDocument) error {
	for _, d := range docs {
		m.docs[d.VectorID] = d
	}
	return nil
}

func (m *memIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *memIndex) Query(ctx context.Context, queryVector []float32, topK int, namespace string) ([]model.VectorHit, error) {
	return nil, nil
}

// memIngestionRepo 是内存里的登记仓库。
type memIngestionRepo struct {
	records          map[uint]*model.IngestionRecord
	collectionCounts map[uint]int64
}

func newMemIngestionRepo(records ...*model.IngestionRecord) *memIngestionRepo {
	m := &memIngestionRepo{records: make(map[uint]*model.IngestionRecord)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *memIngestionRepo) Create(record *model.IngestionRecord) error { return nil }

func (m *memIngestionRepo) FindByID(id uint) (*model.IngestionRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (m *memIngestionRepo) FindByName(name string) (*model.IngestionRecord, error) {
	for _, r := range m.records {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memIngestionRepo) DeleteByID(id uint) error {
	delete(m.records, id)
	return nil
}

func (m *memIngestionRepo) FindWithPagination(offset, limit int) ([]model.IngestionRecord, int64, error) {
	return nil, 0, nil
}

func (m *memIngestionRepo) FindByCollection(collectionID uint) ([]model.IngestionRecord, error) {
	return nil, nil
}

func (m *memIngestionRepo) CountByCollection(collectionID uint) (int64, error) {
	return m.collectionCounts[collectionID], nil
}

func TestDeleteDocumentUsesStoredIDList(t *testing.T) {
	// 索引里有带洞的 ID 集合 doc_0, doc_2 和另一个文档的向量
	index := newMemIndex("doc_0", "doc_2", "other_0")
	record := &model.IngestionRecord{ID: 7, Name: "doc", VectorCount: 2}
	require.NoError(t, record.SetIDList([]string{"doc_0", "doc_2"}))
	repo := newMemIngestionRepo(record)

	svc := NewIngestService(nil, index, repo, nil, nil)
	require.NoError(t, svc.DeleteDocument(context.Background(), 7))

	// 只删了登记的 ID, 别的文档不受影响
	assert.NotContains(t, index.docs, "doc_0")
	assert.NotContains(t, index.docs, "doc_2")
	assert.Contains(t, index.docs, "other_0")

	// 登记记录本身也被删除
	_, err := repo.FindByID(7)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteDocumentFallsBackToRange(t *testing.T) {
	// 旧记录没有显式 ID 列表, 按数量重建区间
	index := newMemIndex("legacy_0", "legacy_1", "legacy_2")
	record := &model.IngestionRecord{ID: 3, Name: "legacy", VectorCount: 3}
	repo := newMemIngestionRepo(record)

	svc := NewIngestService(nil, index, repo, nil, nil)
	require.NoError(t, svc.DeleteDocument(context.Background(), 3))
	assert.Empty(t, index.docs)
}

func TestDeleteDocumentUnknownRecord(t *testing.T) {
	svc := NewIngestService(nil, newMemIndex(), newMemIngestionRepo(), nil, nil)
	err := svc.DeleteDocument(context.Background(), 42)
	assert.Error(t, err)
}

func TestDeleteRange(t *testing.T) {
	index := newMemIndex("r_0", "r_1", "keep_0")
	svc := NewIngestService(nil, index, newMemIngestionRepo(), nil, nil)

	// 多删是安全的: r_2 不存在但不算错误
	deleted, err := svc.DeleteRange(context.Background(), "r", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Len(t, index.docs, 1)
	assert.Contains(t, index.docs, "keep_0")
}

func TestDeleteRangeRejectsNonPositiveCount(t *testing.T) {
	svc := NewIngestService(nil, newMemIndex(), newMemIngestionRepo(), nil, nil)
	_, err := svc.DeleteRange(context.Background(), "x", 0)
	assert.Error(t, err)
}

func TestIngestQnAAndRawRejectEmptyInput(t *testing.T) {
	svc := NewIngestService(nil, newMemIndex(), newMemIngestionRepo(), nil, nil)
	_, err := svc.IngestQnA(context.Background(), nil, pipeline.IngestRequest{Name: "q"})
	assert.Error(t, err)
	_, err = svc.IngestRaw(context.Background(), nil, pipeline.IngestRequest{Name: "r"})
	assert.Error(t, err)
}
