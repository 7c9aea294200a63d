package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/model"
	"ragpipe-go/internal/repository"
	"ragpipe-go/pkg/embedding"
	"ragpipe-go/pkg/log"
	"ragpipe-go/pkg/tika"
	"ragpipe-go/pkg/vector"
)

// Ingestor 实现完整的导入管道：分块、抽取、嵌入、批量写入向量索引并
// 登记到 MySQL。向量索引与登记库是两个独立远端，任何一步失败都会触发
// 对已完成步骤的补偿回滚，保证两边不留下半截导入。
type Ingestor struct {
	tikaClient *tika.Client
	extractor  Extractor
	embedder   embedding.Client
	index      vector.Index
	repo       repository.IngestionRepository
	counter    TokenCounter
	cfg        config.IngestConfig
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(
	tikaClient *tika.Client,
	extractor Extractor,
	embedder embedding.Client,
	index vector.Index,
	repo repository.IngestionRepository,
	counter TokenCounter,
	cfg config.IngestConfig,
) *Ingestor {
	return &Ingestor{
		tikaClient: tikaClient,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		repo:       repo,
		counter:    counter,
		cfg:        cfg,
	}
}

// IngestRequest 携带一次导入的标识与选项。
type IngestRequest struct {
	Name         string // 本次导入的唯一名称，构成向量 ID 的前缀
	Model        string // 抽取阶段使用的模型，为空时取配置默认值
	Prompt       string // 抽取阶段附加的指令
	DriveLink    string // 原始文件的外部链接，仅做登记
	Namespace    string // 向量命名空间，为空时不隔离
	CollectionID *uint  // 所属知识库集合
	Restructure  bool   // 是否经过大模型抽取重组
}

// IngestResult 描述一次成功导入的产物。
type IngestResult struct {
	RecordID    uint     `json:"record_id"`
	JSONFile    string   `json:"json_file"`
	UpsertedIDs []string `json:"upserted_ids"`
	VectorCount int      `json:"vector_count"`
}

// IngestFile 先通过 Tika 提取纯文本，再走文本导入流程。
func (ing *Ingestor) IngestFile(ctx context.Context, fileReader io.Reader, fileName string, req IngestRequest) (*IngestResult, error) {
	text, err := ing.tikaClient.ExtractText(ctx, fileReader, fileName)
	if err != nil {
		return nil, fmt.Errorf("提取文件文本失败: %w", err)
	}
	return ing.IngestText(ctx, text, req)
}

// IngestText 把一段长文本导入向量索引。
// Restructure 为 true 时每个分块交给大模型抽取为多条记录；为 false 时
// 每个分块本身就是一条记录。
func (ing *Ingestor) IngestText(ctx context.Context, text string, req IngestRequest) (*IngestResult, error) {
	chunks := SplitByTokens(text, ing.cfg.ChunkMaxTokens, ing.counter)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("文本为空, 没有可导入的内容")
	}
	log.Infof("[Ingestor] '%s' 分块完成, 共 %d 块", req.Name, len(chunks))

	modelName := req.Model
	if modelName == "" {
		modelName = ing.cfg.ExtractModel
	}

	var records []model.Record
	for _, chunk := range chunks {
		if req.Restructure {
			// 抽取是尽力而为的: 单个分块失败按零记录处理, 不中断整批
			extracted := ing.extractor.ExtractRecords(ctx, chunk, modelName, req.Prompt)
			for i := range extracted {
				extracted[i].Chunk = chunk
			}
			records = append(records, extracted...)
		} else {
			records = append(records, model.Record{Gist: chunk, Chunk: chunk})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("没有抽取出任何记录, 导入终止")
	}

	return ing.IngestRecords(ctx, records, req)
}

// IngestRecords 把已成型的记录列表嵌入并提交到两个远端。
// 这是所有导入入口共享的提交路径。
func (ing *Ingestor) IngestRecords(ctx context.Context, records []model.Record, req IngestRequest) (result *IngestResult, err error) {
	// 元数据净化, 保证写入向量索引的都是标量或字符串数组
	for i := range records {
		records[i].Metadata = SanitizeMetadata(records[i].Metadata)
	}

	// 记录列表先落盘, 作为这次导入的审计产物
	jsonFile, err := ing.writeRecordsFile(req.Name, records)
	if err != nil {
		return nil, err
	}

	saga := &Saga{}
	defer func() {
		if err != nil {
			if rbErr := saga.Rollback(context.Background()); rbErr != nil {
				log.Errorf("[Ingestor] '%s' 回滚未完全成功: %v", req.Name, rbErr)
			}
		}
	}()
	saga.Defer("删除记录文件 "+jsonFile, func(ctx context.Context) error {
		return os.Remove(jsonFile)
	})

	// 逐条嵌入; 失败的记录跳过, 其原始下标仍被占用, 因此向量 ID 可能有洞
	var docs []model.VectorDocument
	for i, rec := range records {
		embedText := rec.Gist
		if embedText == "" {
			embedText = rec.Chunk
		}
		vec, embErr := ing.embedder.CreateEmbedding(ctx, embedText)
		if embErr != nil {
			log.Warnf("[Ingestor] '%s' 第 %d 条记录嵌入失败, 跳过: %v", req.Name, i, embErr)
			continue
		}
		docs = append(docs, model.VectorDocument{
			VectorID:     vector.VectorID(req.Name, i),
			Name:         req.Name,
			ChunkIndex:   i,
			Gist:         rec.Gist,
			TextContent:  rec.Chunk,
			Vector:       vec,
			Namespace:    req.Namespace,
			Metadata:     rec.Metadata,
			ModelVersion: req.Model,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("所有记录嵌入均失败, 导入终止")
	}

	// 按子批次写入向量索引, 每个成功的子批次登记独立的补偿动作,
	// 这样中途失败时只有已写入的批次会被删除
	upsertedIDs := make([]string, 0, len(docs))
	for start := 0; start < len(docs); start += vector.BatchSize {
		end := start + vector.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		if err = withRetry(ctx, fmt.Sprintf("upsert %s [%d:%d]", req.Name, start, end), func(ctx context.Context) error {
			return ing.index.Upsert(ctx, batch)
		}); err != nil {
			return nil, fmt.Errorf("写入向量索引失败: %w", err)
		}

		batchIDs := make([]string, 0, len(batch))
		for _, d := range batch {
			batchIDs = append(batchIDs, d.VectorID)
		}
		upsertedIDs = append(upsertedIDs, batchIDs...)
		saga.Defer(fmt.Sprintf("删除向量批次 %s [%d:%d]", req.Name, start, end), func(ctx context.Context) error {
			return withRetry(ctx, "rollback delete "+req.Name, func(ctx context.Context) error {
				return ing.index.DeleteByIDs(ctx, batchIDs)
			})
		})
	}

	// 最后写登记记录; 失败时上面的补偿动作会把向量索引清理干净
	record := &model.IngestionRecord{
		Name:         req.Name,
		VectorCount:  len(upsertedIDs),
		DriveLink:    req.DriveLink,
		Namespace:    req.Namespace,
		CollectionID: req.CollectionID,
	}
	if err = record.SetIDList(upsertedIDs); err != nil {
		return nil, fmt.Errorf("序列化向量 ID 列表失败: %w", err)
	}
	if err = ing.repo.Create(record); err != nil {
		return nil, fmt.Errorf("写入登记记录失败: %w", err)
	}

	// 记录文件只是中间产物, 成功落库后即可清理
	if removeErr := os.Remove(jsonFile); removeErr != nil {
		log.Warnf("[Ingestor] 清理记录文件 %s 失败: %v", jsonFile, removeErr)
	}

	log.Infof("[Ingestor] '%s' 导入完成, 共 %d 条向量, 登记记录 ID=%d", req.Name, len(upsertedIDs), record.ID)
	return &IngestResult{
		RecordID:    record.ID,
		JSONFile:    jsonFile,
		UpsertedIDs: upsertedIDs,
		VectorCount: len(upsertedIDs),
	}, nil
}

// writeRecordsFile 把记录列表写入本地文档目录。
func (ing *Ingestor) writeRecordsFile(name string, records []model.Record) (string, error) {
	if err := os.MkdirAll(ing.cfg.DocsDir, 0o755); err != nil {
		return "", fmt.Errorf("创建文档目录失败: %w", err)
	}
	jsonFile := filepath.Join(ing.cfg.DocsDir, name+".json")
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化记录列表失败: %w", err)
	}
	if err := os.WriteFile(jsonFile, data, 0o644); err != nil {
		return "", fmt.Errorf("写入记录文件失败: %w", err)
	}
	return jsonFile, nil
}
