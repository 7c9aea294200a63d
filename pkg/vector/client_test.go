package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorID(t *testing.T) {
	assert.Equal(t, "manual_0", VectorID("manual", 0))
	assert.Equal(t, "manual_41", VectorID("manual", 41))
}

func TestIDsFor(t *testing.T) {
	assert.Equal(t, []string{"doc_0", "doc_1", "doc_2"}, IDsFor("doc", 3))
	assert.Empty(t, IDsFor("doc", 0))
}

func TestVectorIDDeterministic(t *testing.T) {
	// 同样的 name 和下标总是产生同样的 ID, 这是删除路径依赖的关联键
	for i := 0; i < 5; i++ {
		assert.Equal(t, VectorID("n", i), VectorID("n", i))
	}
}
