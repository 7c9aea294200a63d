// Package vector 提供了基于 Elasticsearch 的向量索引客户端。
// 索引中的文档以 "{name}_{i}" 作为 ID，与 MySQL 登记记录互为关联。
package vector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ragpipe-go/internal/config"
	"ragpipe-go/internal/model"
	"ragpipe-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// BatchSize 是单次批量写入向量索引的最大条数。
const BatchSize = 100

// Index 定义了向量索引的操作接口。
type Index interface {
	// Upsert 批量写入（或覆盖）向量文档。调用方保证单次不超过 BatchSize 条。
	Upsert(ctx context.Context, docs []model.VectorDocument) error
	// DeleteByIDs 按 ID 列表删除向量文档。删除不存在的 ID 不算错误。
	DeleteByIDs(ctx context.Context, ids []string) error
	// Query 以查询向量做 kNN 检索，返回至多 topK 条命中。
	Query(ctx context.Context, queryVector []float32, topK int, namespace string) ([]model.VectorHit, error)
}

// Client 是 Index 接口的 Elasticsearch 实现。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端并确保索引存在。
func NewClient(cfg config.VectorConfig) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: es, indexName: cfg.IndexName}
	if err := c.createIndexIfNotExists(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// VectorID 构造单条向量的 ID。
func VectorID(name string, i int) string {
	return fmt.Sprintf("%s_%d", name, i)
}

// IDsFor 重建一次导入对应的连续 ID 区间 {name}_0 .. {name}_{count-1}。
// 仅用于没有显式 ID 列表可用的兼容删除路径。
func IDsFor(name string, count int) []string {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, VectorID(name, i))
	}
	return ids
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *Client) createIndexIfNotExists(cfg config.VectorConfig) error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"name": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"gist": { "type": "text" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"namespace": { "type": "keyword" },
				"metadata": { "type": "object", "dynamic": true },
				"model_version": { "type": "keyword" }
			}
		}
	}`, cfg.Dimensions)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// Upsert 使用 Bulk API 批量写入向量文档。
func (c *Client) Upsert(ctx context.Context, docs []model.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > BatchSize {
		return fmt.Errorf("单次批量写入超过上限 %d: %d", BatchSize, len(docs))
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.indexName,
				"_id":    doc.VectorID,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("序列化 bulk 动作失败: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("序列化向量文档失败: %w", err)
		}
	}

	return c.doBulk(ctx, &buf)
}

// DeleteByIDs 使用 Bulk API 按 ID 删除向量文档。
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, id := range ids {
		action := map[string]interface{}{
			"delete": map[string]interface{}{
				"_index": c.indexName,
				"_id":    id,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("序列化 bulk 动作失败: %w", err)
		}
	}

	return c.doBulk(ctx, &buf)
}

// doBulk 执行一次 Bulk 请求并检查逐条结果。
func (c *Client) doBulk(ctx context.Context, body *bytes.Buffer) error {
	req := esapi.BulkRequest{
		Body:    bytes.NewReader(body.Bytes()),
		Refresh: "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk 请求失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk 请求返回错误: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for op, detail := range item {
				if detail.Error != nil {
					return fmt.Errorf("bulk %s 部分失败: %s: %s", op, detail.Error.Type, detail.Error.Reason)
				}
			}
		}
		return errors.New("bulk 请求部分失败")
	}
	return nil
}

// Query 以查询向量执行 kNN 检索；namespace 非空时作为过滤条件。
func (c *Client) Query(ctx context.Context, queryVector []float32, topK int, namespace string) ([]model.VectorHit, error) {
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   queryVector,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if namespace != "" {
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"namespace": namespace},
		}
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.VectorDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.VectorHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.VectorHit{Doc: hit.Source, Score: hit.Score})
	}
	return hits, nil
}
