// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"ragpipe-go/internal/model"
	"ragpipe-go/pkg/embedding"
	"ragpipe-go/pkg/log"
	"ragpipe-go/pkg/vector"
)

// RetrievalService 接口定义了检索操作。
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, topK int, namespace string) ([]model.SourceDocument, error)
}

type retrievalService struct {
	embeddingClient embedding.Client
	index           vector.Index
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, index vector.Index) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		index:           index,
	}
}

// Retrieve 把查询向量化后执行近邻检索，并组装为来源文档列表。
// 零命中不是错误，返回空列表。
func (s *retrievalService) Retrieve(ctx context.Context, query string, topK int, namespace string) ([]model.SourceDocument, error) {
	log.Infof("[RetrievalService] 开始检索, query: '%s', topK: %d, namespace: '%s'", query, topK, namespace)

	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[RetrievalService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	hits, err := s.index.Query(ctx, queryVector, topK, namespace)
	if err != nil {
		log.Errorf("[RetrievalService] 向量检索失败: %v", err)
		return nil, err
	}

	results := make([]model.SourceDocument, 0, len(hits))
	for _, hit := range hits {
		text := hit.Doc.TextContent
		if text == "" {
			text = hit.Doc.Gist
		}
		metadata := make(map[string]interface{}, len(hit.Doc.Metadata)+3)
		for k, v := range hit.Doc.Metadata {
			metadata[k] = v
		}
		metadata["name"] = hit.Doc.Name
		metadata["vector_id"] = hit.Doc.VectorID
		if hit.Doc.Gist != "" {
			metadata["gist"] = hit.Doc.Gist
		}
		results = append(results, model.SourceDocument{
			Text:     text,
			Metadata: metadata,
			Score:    hit.Score,
		})
	}

	log.Infof("[RetrievalService] 检索完毕, 返回 %d 条结果", len(results))
	return results, nil
}
