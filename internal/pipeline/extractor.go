package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ragpipe-go/internal/model"
	"ragpipe-go/pkg/llm"
	"ragpipe-go/pkg/log"
)

// Extractor 把一个文本分块交给生成式模型，抽取为带摘要与元数据的记录列表。
// 这一步是尽力而为的：模型调用失败或输出无法解析时返回空列表，
// 单个分块的失败不会中断整批导入。
type Extractor interface {
	ExtractRecords(ctx context.Context, chunk, modelName, instruction string) []model.Record
}

type llmExtractor struct {
	llmClient llm.Client
}

// NewExtractor 创建一个基于 LLM 的 Extractor 实例。
func NewExtractor(llmClient llm.Client) Extractor {
	return &llmExtractor{llmClient: llmClient}
}

const extractPromptTemplate = `You are an intelligent system that extracts relevant information from the following text for use in a Retrieval-Augmented Generation (RAG) system.

Instructions:
1. Read the text carefully and split it into logical "gist" entries with corresponding "metadata".
2. Metadata should reflect any useful tags, titles, dates, or structural information (e.g., section names, topics).
3. All "gist" values must summarize or represent meaningful pieces of content for embedding.

Return ONLY a valid JSON array like this:

[
  {
    "gist": "Short summary or key content",
    "metadata": {
      "topic": "Optional tag",
      "section": "Optional section name"
    }
  },
  ...
]
must do instruction:
 %s

Only include metadata fields if they are clearly identifiable in the text.
Text:
"""%s"""`

// ExtractRecords 调用生成式模型并解析其输出。任何失败都降级为空列表。
func (e *llmExtractor) ExtractRecords(ctx context.Context, chunk, modelName, instruction string) []model.Record {
	prompt := fmt.Sprintf(extractPromptTemplate, instruction, chunk)

	content, err := e.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, &llm.CompleteOptions{Model: modelName})
	if err != nil {
		log.Warnf("[Extractor] 模型调用失败, 该分块按零记录处理: %v", err)
		return nil
	}

	records, err := parseRecords(content)
	if err != nil {
		log.Warnf("[Extractor] 模型输出解析失败, 该分块按零记录处理: %v", err)
		return nil
	}
	return records
}

var (
	fenceOpenRE     = regexp.MustCompile("^```(?:json)?[ \t]*\n?")
	fenceCloseRE    = regexp.MustCompile("\n?```$")
	trailingCommaRE = regexp.MustCompile(`,\s*([\}\]])`)
)

// parseRecords 做两段式解析：先剥掉 Markdown 代码栅栏后严格解析；
// 失败时做一次去尾逗号的修复再试。两次都失败才算解析失败。
func parseRecords(content string) ([]model.Record, error) {
	cleaned := stripCodeFences(content)

	var records []model.Record
	if err := json.Unmarshal([]byte(cleaned), &records); err == nil {
		return records, nil
	}

	repaired := trailingCommaRE.ReplaceAllString(cleaned, "$1")
	if err := json.Unmarshal([]byte(repaired), &records); err != nil {
		return nil, fmt.Errorf("修复后仍无法解析为 JSON 数组: %w", err)
	}
	return records, nil
}

// stripCodeFences 去除模型输出外层的 Markdown 代码栅栏。
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpenRE.ReplaceAllString(s, "")
	s = fenceCloseRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
