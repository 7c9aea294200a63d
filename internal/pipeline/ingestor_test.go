package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeExtractor 每个分块返回固定数量的记录。
type fakeExtractor struct {
	perChunk int
}

func (f *fakeExtractor) ExtractRecords(ctx context.Context, chunk, modelName, instruction string) []model.Record {
	records := make([]model.Record, 0, f.perChunk)
	for i := 0; i < f.perChunk; i++ {
		records = append(records, model.Record{Gist: fmt.Sprintf("gist-%d of %q", i, chunk)})
	}
	return records
}

// fakeEmbedder 返回固定向量, 可针对特定文本返回错误。
type fakeEmbedder struct {
	failFor map[string]bool
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.failFor[text] {
		return nil, fmt.Errorf("embedding failed for %q", text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeIndex 是内存里的向量索引。
type fakeIndex struct {
	mu         sync.Mutex
	docs       map[string]model.VectorDocument
	failUpsert bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]model.VectorDocument)}
}

func (f *fakeIndex) Upsert(ctx context.Context, docs []model.VectorDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return fmt.Errorf("upsert rejected")
	}
	for _, d := range docs {
		f.docs[d.VectorID] = d
	}
	return nil
}

func (f *fakeIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, queryVector []float32, topK int, namespace string) ([]model.VectorHit, error) {
	return nil, nil
}

// fakeIngestionRepo 是内存里的登记仓库。
type fakeIngestionRepo struct {
	mu         sync.Mutex
	records    map[uint]*model.IngestionRecord
	nextID     uint
	failCreate bool
}

func newFakeIngestionRepo() *fakeIngestionRepo {
	return &fakeIngestionRepo{records: make(map[uint]*model.IngestionRecord), nextID: 1}
}

func (f *fakeIngestionRepo) Create(record *model.IngestionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return fmt.Errorf("database unavailable")
	}
	record.ID = f.nextID
	f.nextID++
	f.records[record.ID] = record
	return nil
}

func (f *fakeIngestionRepo) FindByID(id uint) (*model.IngestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (f *fakeIngestionRepo) FindByName(name string) (*model.IngestionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeIngestionRepo) DeleteByID(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeIngestionRepo) FindWithPagination(offset, limit int) ([]model.IngestionRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeIngestionRepo) FindByCollection(collectionID uint) ([]model.IngestionRecord, error) {
	return nil, nil
}

func (f *fakeIngestionRepo) CountByCollection(collectionID uint) (int64, error) {
	return 0, nil
}

func newTestIngestor(t *testing.T, index *fakeIndex, repo *fakeIngestionRepo, embedder *fakeEmbedder) *Ingestor {
	t.Helper()
	if embedder == nil {
		embedder = &fakeEmbedder{}
	}
	cfg := config.IngestConfig{
		DocsDir:        t.TempDir(),
		ChunkMaxTokens: 4,
	}
	return NewIngestor(nil, &fakeExtractor{perChunk: 1}, embedder, index, repo, wordCounter{}, cfg)
}

func TestIngestTextHappyPath(t *testing.T) {
	index := newFakeIndex()
	repo := newFakeIngestionRepo()
	ing := newTestIngestor(t, index, repo, nil)

	result, err := ing.IngestText(context.Background(), "a b\nc d\ne f", IngestRequest{Name: "manual"})
	require.NoError(t, err)

	// 预算 4 词 → 两个分块 → 两条记录
	assert.Equal(t, []string{"manual_0", "manual_1"}, result.UpsertedIDs)
	assert.Equal(t, 2, result.VectorCount)
	assert.Len(t, index.docs, 2)
	assert.Equal(t, "manual", index.docs["manual_0"].Name)
	assert.Equal(t, 0, index.docs["manual_0"].ChunkIndex)

	// 登记记录保存了精确的向量 ID 列表
	record, err := repo.FindByID(result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.VectorCount)
	ids, err := record.IDList()
	require.NoError(t, err)
	assert.Equal(t, []string{"manual_0", "manual_1"}, ids)

	// 记录文件是中间产物, 成功后应被清理
	_, err = os.Stat(result.JSONFile)
	assert.True(t, os.IsNotExist(err))
}

func TestIngestTextSingleChunkSingleVector(t *testing.T) {
	index := newFakeIndex()
	repo := newFakeIngestionRepo()
	ing := newTestIngestor(t, index, repo, nil)

	// 两行文本在预算内合为一个分块, 只产生一条向量
	result, err := ing.IngestText(context.Background(), "Line A\nLine B", IngestRequest{Name: "tiny"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tiny_0"}, result.UpsertedIDs)
	record, err := repo.FindByID(result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 1, record.VectorCount)
}

func TestIngestTextEmbeddingFailureLeavesHole(t *testing.T) {
	index := newFakeIndex()
	repo := newFakeIngestionRepo()
	embedder := &fakeEmbedder{failFor: map[string]bool{`gist-0 of "d e f"`: true}}
	ing := newTestIngestor(t, index, repo, embedder)

	result, err := ing.IngestText(context.Background(), "a b c\nd e f\ng h i", IngestRequest{Name: "holey", Restructure: true})
	require.NoError(t, err)

	// 三个分块, 中间那块的嵌入失败被跳过, 其下标仍被占用
	assert.Equal(t, []string{"holey_0", "holey_2"}, result.UpsertedIDs)
	assert.Len(t, index.docs, 2)

	record, err := repo.FindByID(result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.VectorCount)
	ids, err := record.IDList()
	require.NoError(t, err)
	// 显式 ID 列表保留了洞的信息, 区间重建做不到这一点
	assert.Equal(t, []string{"holey_0", "holey_2"}, ids)
}

func TestIngestTextRecordFailureRollsBackVectors(t *testing.T) {
	index := newFakeIndex()
	repo := newFakeIngestionRepo()
	repo.failCreate = true
	ing := newTestIngestor(t, index, repo, nil)

	_, err := ing.IngestText(context.Background(), "a b c\nd e f", IngestRequest{Name: "doomed"})
	require.Error(t, err)

	// 已写入的向量被补偿删除, 两个远端都不留半截导入
	assert.Empty(t, index.docs)
	assert.Empty(t, repo.records)
}

func TestIngestTextUpsertFailureRemovesArtifact(t *testing.T) {
	index := newFakeIndex()
	index.failUpsert = true
	repo := newFakeIngestionRepo()
	ing := newTestIngestor(t, index, repo, nil)

	_, err := ing.IngestText(context.Background(), "a b c", IngestRequest{Name: "rejected"})
	require.Error(t, err)
	assert.Empty(t, index.docs)
	assert.Empty(t, repo.records)

	// 回滚连同落盘的记录文件一起清理
	entries, readErr := os.ReadDir(ing.cfg.DocsDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestIngestTextRejectsEmptyText(t *testing.T) {
	ing := newTestIngestor(t, newFakeIndex(), newFakeIngestionRepo(), nil)
	_, err := ing.IngestText(context.Background(), "   \n ", IngestRequest{Name: "empty"})
	assert.Error(t, err)
}

func TestIngestRecordsSanitizesMetadata(t *testing.T) {
	index := newFakeIndex()
	repo := newFakeIngestionRepo()
	ing := newTestIngestor(t, index, repo, nil)

	records := []model.Record{{
		Gist: "g",
		Metadata: map[string]interface{}{
			"nested": map[string]interface{}{"k": "v"},
		},
	}}
	result, err := ing.IngestRecords(context.Background(), records, IngestRequest{Name: "meta"})
	require.NoError(t, err)

	doc := index.docs[result.UpsertedIDs[0]]
	assert.Equal(t, `{"k":"v"}`, doc.Metadata["nested"])
}
