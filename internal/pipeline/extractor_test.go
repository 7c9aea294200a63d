package pipeline

import (
	"context"
	"fmt"
	"testing"

	"ragpipe-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM 返回预设的补全结果。
type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, opts *llm.CompleteOptions) (string, error) {
	return f.content, f.err
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	return fmt.Errorf("not implemented")
}

func TestParseRecordsCleanJSON(t *testing.T) {
	records, err := parseRecords(`[{"gist":"g1","metadata":{"topic":"t"}},{"gist":"g2"}]`)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "g1", records[0].Gist)
	assert.Equal(t, "t", records[0].Metadata["topic"])
	assert.Equal(t, "g2", records[1].Gist)
}

func TestParseRecordsStripsCodeFences(t *testing.T) {
	content := "```json\n[{\"gist\":\"fenced\"}]\n```"
	records, err := parseRecords(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fenced", records[0].Gist)
}

func TestParseRecordsBareFence(t *testing.T) {
	content := "```\n[{\"gist\":\"bare\"}]\n```"
	records, err := parseRecords(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bare", records[0].Gist)
}

func TestParseRecordsRepairsTrailingCommas(t *testing.T) {
	content := `[{"gist":"a","metadata":{"k":"v",}},]`
	records, err := parseRecords(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Gist)
	assert.Equal(t, "v", records[0].Metadata["k"])
}

func TestParseRecordsRejectsGarbage(t *testing.T) {
	_, err := parseRecords("I could not produce JSON, sorry.")
	assert.Error(t, err)
}

func TestExtractRecordsDegradesToEmptyOnLLMError(t *testing.T) {
	ext := NewExtractor(&fakeLLM{err: fmt.Errorf("api down")})
	records := ext.ExtractRecords(context.Background(), "chunk text", "model-x", "")
	assert.Empty(t, records)
}

func TestExtractRecordsDegradesToEmptyOnBadOutput(t *testing.T) {
	ext := NewExtractor(&fakeLLM{content: "not json at all"})
	records := ext.ExtractRecords(context.Background(), "chunk text", "model-x", "")
	assert.Empty(t, records)
}

func TestExtractRecordsSuccess(t *testing.T) {
	ext := NewExtractor(&fakeLLM{content: "```json\n[{\"gist\":\"核心内容\",\"metadata\":{\"section\":\"一\"}}]\n```"})
	records := ext.ExtractRecords(context.Background(), "chunk text", "model-x", "keep sections")
	require.Len(t, records, 1)
	assert.Equal(t, "核心内容", records[0].Gist)
	assert.Equal(t, "一", records[0].Metadata["section"])
}
