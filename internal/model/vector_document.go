// Package model 定义了与向量索引交互的文档结构。
package model

// VectorDocument 代表存储在向量索引中的一条文档。
// VectorID 形如 "{name}_{i}"，是向量索引与 MySQL 登记记录之间的关联键。
type VectorDocument struct {
	VectorID     string                 `json:"vector_id"`
	Name         string                 `json:"name"`
	ChunkIndex   int                    `json:"chunk_index"`
	Gist         string                 `json:"gist,omitempty"`
	TextContent  string                 `json:"text_content"`
	Vector       []float32              `json:"vector"`
	Namespace    string                 `json:"namespace,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ModelVersion string                 `json:"model_version,omitempty"`
}

// VectorHit 代表一次近邻检索命中的文档及其得分。
type VectorHit struct {
	Doc   VectorDocument
	Score float64
}

// SourceDocument 定义了返回给前端的检索来源结构。
type SourceDocument struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}
