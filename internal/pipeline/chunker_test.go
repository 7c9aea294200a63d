package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter 以空白分隔的词数作为 token 数, 让测试不依赖 tiktoken 的词表。
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestSplitByTokensEmptyInput(t *testing.T) {
	assert.Nil(t, SplitByTokens("", 10, wordCounter{}))
	assert.Nil(t, SplitByTokens("   \n\t\n", 10, wordCounter{}))
}

func TestSplitByTokensSingleChunk(t *testing.T) {
	text := "line one\nline two"
	chunks := SplitByTokens(text, 100, wordCounter{})
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitByTokensRespectsBudget(t *testing.T) {
	text := "a b c\nd e f\ng h i\nj k l"
	chunks := SplitByTokens(text, 6, wordCounter{})
	require.Len(t, chunks, 2)
	assert.Equal(t, "a b c\nd e f", chunks[0])
	assert.Equal(t, "g h i\nj k l", chunks[1])

	for _, c := range chunks {
		assert.LessOrEqual(t, wordCounter{}.Count(c), 6)
	}
}

func TestSplitByTokensNeverSplitsALine(t *testing.T) {
	// 单行超出预算时整行作为一个超限分块输出
	long := strings.Repeat("word ", 50)
	text := "short\n" + strings.TrimSpace(long) + "\nshort again"
	chunks := SplitByTokens(text, 5, wordCounter{})
	require.Len(t, chunks, 3)
	assert.Equal(t, "short", chunks[0])
	assert.Equal(t, strings.TrimSpace(long), chunks[1])
	assert.Equal(t, "short again", chunks[2])
}

func TestSplitByTokensRoundTrip(t *testing.T) {
	text := "第一行\n第二行 内容\n\n第四行\n第五行 更多 内容\n第六行"
	chunks := SplitByTokens(text, 3, wordCounter{})
	require.NotEmpty(t, chunks)

	// 各分块按换行拼接后应还原原文
	assert.Equal(t, text, strings.Join(chunks, "\n"))
}

func TestSplitByTokensDeterministic(t *testing.T) {
	text := "a b\nc d\ne f\ng h"
	first := SplitByTokens(text, 4, wordCounter{})
	second := SplitByTokens(text, 4, wordCounter{})
	assert.Equal(t, first, second)
}

func TestNewTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter("cl100k_base")
	require.NoError(t, err)
	assert.Greater(t, counter.Count("hello world"), 0)

	_, err = NewTokenCounter("no-such-encoding")
	assert.Error(t, err)
}
