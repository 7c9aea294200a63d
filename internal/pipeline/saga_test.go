package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaRollbackRunsInReverseOrder(t *testing.T) {
	saga := &Saga{}
	var order []string
	for _, label := range []string{"first", "second", "third"} {
		label := label
		saga.Defer(label, func(ctx context.Context) error {
			order = append(order, label)
			return nil
		})
	}
	require.Equal(t, 3, saga.Len())

	err := saga.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Equal(t, 0, saga.Len())
}

func TestSagaRollbackCollectsAllErrors(t *testing.T) {
	saga := &Saga{}
	var ran []string
	saga.Defer("ok", func(ctx context.Context) error {
		ran = append(ran, "ok")
		return nil
	})
	saga.Defer("boom-1", func(ctx context.Context) error {
		ran = append(ran, "boom-1")
		return fmt.Errorf("boom-1")
	})
	saga.Defer("boom-2", func(ctx context.Context) error {
		ran = append(ran, "boom-2")
		return fmt.Errorf("boom-2")
	})

	err := saga.Rollback(context.Background())
	require.Error(t, err)
	// 一个补偿失败不应阻止其余补偿执行
	assert.Equal(t, []string{"boom-2", "boom-1", "ok"}, ran)
	assert.Contains(t, err.Error(), "boom-1")
	assert.Contains(t, err.Error(), "boom-2")
}

func TestSagaRollbackEmpty(t *testing.T) {
	saga := &Saga{}
	assert.NoError(t, saga.Rollback(context.Background()))
}
