// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatAnswer 是 /chat 接口要求模型输出的结构化回答。
// 模型输出解析失败在该路径上是硬错误，直接返回 500。
type ChatAnswer struct {
	Answer           string   `json:"answer"`
	FollowUpQuestion []string `json:"follow_up_question"`
}

// DirectChatResponse 是 /chat/direct 接口的响应结构，附带检索来源。
type DirectChatResponse struct {
	Message         string           `json:"message"`
	Query           string           `json:"query"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	ContextMissing  bool             `json:"context_missing"`
}
