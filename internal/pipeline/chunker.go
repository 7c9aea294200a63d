// Package pipeline 定义了导入管道的核心流程：分块、抽取、嵌入与跨存储提交。
package pipeline

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 计算一段文本的模型 token 数。
// 抽象成接口是为了让单元测试可以用确定性的计数器替换 tiktoken。
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter 基于指定的 tiktoken 编码（如 cl100k_base）创建计数器。
func NewTokenCounter(encoding string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// SplitByTokens 将文本按 token 预算切分为若干分块。
// 分块边界落在换行符上，不会把一行切成两半；单行超出预算时整行作为
// 一个超限分块输出。纯函数：同样的输入总是产生同样的分块序列，且
// 去掉尾部空白后各分块按行拼接可还原原文。
func SplitByTokens(text string, maxTokens int, counter TokenCounter) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var current strings.Builder

	for _, line := range lines {
		candidate := current.String() + line
		if counter.Count(candidate) > maxTokens && strings.TrimSpace(current.String()) != "" {
			chunks = append(chunks, strings.TrimSuffix(current.String(), "\n"))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSuffix(current.String(), "\n"))
	}
	return chunks
}
