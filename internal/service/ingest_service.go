package service

import (
	"context"
	"fmt"
	"io"

	"gorm.io/gorm"

	"ragpipe-go/internal/model"
	"ragpipe-go/internal/pipeline"
	"ragpipe-go/internal/repository"
	"ragpipe-go/pkg/kafka"
	"ragpipe-go/pkg/log"
	"ragpipe-go/pkg/storage"
	"ragpipe-go/pkg/tasks"
	"ragpipe-go/pkg/vector"
)

// IngestService 定义了导入与删除操作的接口。
// 它同时实现 kafka.TaskProcessor, 供异步消费者复用同一条导入管道。
type IngestService interface {
	IngestText(ctx context.Context, text string, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	IngestFile(ctx context.Context, fileReader io.Reader, fileName string, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	IngestQnA(ctx context.Context, pairs []model.QnAPair, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	IngestRaw(ctx context.Context, rawRecords []model.RawRecord, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	// EnqueueFile 把文件存入对象存储并向 Kafka 投递一个异步导入任务。
	EnqueueFile(ctx context.Context, fileReader io.Reader, size int64, fileName, contentType string, req pipeline.IngestRequest) (string, error)
	Process(ctx context.Context, task tasks.IngestionTask) error
	// DeleteRange 按 "{name}_0..{name}_{count-1}" 的区间删除向量。
	// 仅用于没有登记记录可查的旧数据。
	DeleteRange(ctx context.Context, name string, count int) (int, error)
	// DeleteDocument 按登记记录删除一次导入的全部向量及记录本身。
	DeleteDocument(ctx context.Context, recordID uint) error
}

type ingestService struct {
	ingestor      *pipeline.Ingestor
	index         vector.Index
	ingestionRepo repository.IngestionRepository
	storageClient *storage.Client
	producer      *kafka.Producer
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(
	ingestor *pipeline.Ingestor,
	index vector.Index,
	ingestionRepo repository.IngestionRepository,
	storageClient *storage.Client,
	producer *kafka.Producer,
) IngestService {
	return &ingestService{
		ingestor:      ingestor,
		index:         index,
		ingestionRepo: ingestionRepo,
		storageClient: storageClient,
		producer:      producer,
	}
}

// IngestText 同步导入一段文本。
func (s *ingestService) IngestText(ctx context.Context, text string, req pipeline.IngestRequest) (*pipeline.IngestResult, error) {
	return s.ingestor.IngestText(ctx, text, req)
}

// IngestFile 同步导入一个文件。
func (s *ingestService) IngestFile(ctx context.Context, fileReader io.Reader, fileName string, req pipeline.IngestRequest) (*pipeline.IngestResult, error) {
	return s.ingestor.IngestFile(ctx, fileReader, fileName, req)
}

// IngestQnA 把问答对列表导入向量索引。
// 问题和答案一起嵌入, 原文与元数据分别保留。
func (s *ingestService) IngestQnA(ctx context.Context, pairs []model.QnAPair, req pipeline.IngestRequest) (*pipeline.IngestResult, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("问答列表为空")
	}
	records := make([]model.Record, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, model.Record{
			Gist:  fmt.Sprintf("Q: %s\nA: %s", p.Question, p.Answer),
			Chunk: p.Answer,
			Metadata: map[string]interface{}{
				"type":     "qna",
				"question": p.Question,
			},
		})
	}
	return s.ingestor.IngestRecords(ctx, records, req)
}

// IngestRaw 导入已经成型的记录, 跳过分块与抽取。
func (s *ingestService) IngestRaw(ctx context.Context, rawRecords []model.RawRecord, req pipeline.IngestRequest) (*pipeline.IngestResult, error) {
	if len(rawRecords) == 0 {
		return nil, fmt.Errorf("记录列表为空")
	}
	records := make([]model.Record, 0, len(rawRecords))
	for _, r := range rawRecords {
		metadata := map[string]interface{}{}
		if r.ID != "" {
			metadata["source_id"] = r.ID
		}
		if r.Category != "" {
			metadata["category"] = r.Category
		}
		records = append(records, model.Record{
			Gist:     r.Text,
			Chunk:    r.Text,
			Metadata: metadata,
		})
	}
	return s.ingestor.IngestRecords(ctx, records, req)
}

// EnqueueFile 先把文件本体上传到对象存储, 再投递携带元信息的导入任务。
// 返回对象存储中的对象名。
func (s *ingestService) EnqueueFile(ctx context.Context, fileReader io.Reader, size int64, fileName, contentType string, req pipeline.IngestRequest) (string, error) {
	objectName := fmt.Sprintf("ingest/%s/%s", req.Name, fileName)
	if err := s.storageClient.PutObject(ctx, objectName, fileReader, size, contentType); err != nil {
		return "", fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	task := tasks.IngestionTask{
		Name:         req.Name,
		ObjectName:   objectName,
		FileName:     fileName,
		Model:        req.Model,
		Prompt:       req.Prompt,
		DriveLink:    req.DriveLink,
		Namespace:    req.Namespace,
		CollectionID: req.CollectionID,
		Restructure:  req.Restructure,
	}
	if err := s.producer.ProduceIngestionTask(ctx, task); err != nil {
		// 任务投递失败时回收已上传的对象, 避免留下孤儿文件
		if rmErr := s.storageClient.RemoveObject(ctx, objectName); rmErr != nil {
			log.Errorf("[IngestService] 回收对象 '%s' 失败: %v", objectName, rmErr)
		}
		return "", fmt.Errorf("投递导入任务失败: %w", err)
	}

	log.Infof("[IngestService] 异步导入任务已投递: name=%s, object=%s", req.Name, objectName)
	return objectName, nil
}

// Process 消费一个异步导入任务: 从对象存储取回文件并走同步导入管道。
func (s *ingestService) Process(ctx context.Context, task tasks.IngestionTask) error {
	obj, err := s.storageClient.GetObject(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从对象存储取回 '%s' 失败: %w", task.ObjectName, err)
	}
	defer obj.Close()

	_, err = s.ingestor.IngestFile(ctx, obj, task.FileName, pipeline.IngestRequest{
		Name:         task.Name,
		Model:        task.Model,
		Prompt:       task.Prompt,
		DriveLink:    task.DriveLink,
		Namespace:    task.Namespace,
		CollectionID: task.CollectionID,
		Restructure:  task.Restructure,
	})
	return err
}

// DeleteRange 按重建的 ID 区间删除向量。抽取阶段跳过的下标会造成区间
// 里的洞, 删除不存在的 ID 不算错误, 所以多删是安全的。
func (s *ingestService) DeleteRange(ctx context.Context, name string, count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("删除数量必须为正数")
	}
	ids := vector.IDsFor(name, count)
	if err := s.deleteIDs(ctx, ids); err != nil {
		return 0, err
	}
	log.Infof("[IngestService] 已按区间删除 '%s' 的 %d 条向量", name, len(ids))
	return len(ids), nil
}

// DeleteDocument 按登记记录删除对应的全部向量, 然后删除记录本身。
// 向量删除成功但记录删除失败时不做补偿: 残留的记录指向已删除的向量,
// 重试删除即可收敛。
func (s *ingestService) DeleteDocument(ctx context.Context, recordID uint) error {
	record, err := s.ingestionRepo.FindByID(recordID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("登记记录 %d 不存在", recordID)
		}
		return fmt.Errorf("查询登记记录失败: %w", err)
	}

	ids, err := record.IDList()
	if err != nil {
		return fmt.Errorf("解析向量 ID 列表失败: %w", err)
	}
	if len(ids) == 0 {
		// 旧记录没有显式 ID 列表, 退回区间重建
		ids = vector.IDsFor(record.Name, record.VectorCount)
	}

	if err := s.deleteIDs(ctx, ids); err != nil {
		return fmt.Errorf("删除向量失败: %w", err)
	}
	if err := s.ingestionRepo.DeleteByID(recordID); err != nil {
		return fmt.Errorf("删除登记记录失败: %w", err)
	}

	log.Infof("[IngestService] 已删除登记记录 %d ('%s') 及其 %d 条向量", recordID, record.Name, len(ids))
	return nil
}

// deleteIDs 按子批次删除向量 ID。
func (s *ingestService) deleteIDs(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += vector.BatchSize {
		end := start + vector.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.index.DeleteByIDs(ctx, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
