// Package model 包含了应用的数据模型定义。
package model

// Record 代表从一个文本分块中抽取出的一条待嵌入记录。
// Gist 是用于嵌入的摘要/核心内容，Chunk 是原始分块文本，
// Metadata 是由大模型给出的附加标签（需经过净化后才能写入向量索引）。
type Record struct {
	Gist     string                 `json:"gist"`
	Chunk    string                 `json:"chunk,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// QnAPair 代表 Q&A JSON 文件中的一条问答对。
type QnAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RawRecord 代表 /upload/raw 接口中预先成型的一条记录。
type RawRecord struct {
	ID       string `json:"_id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}
