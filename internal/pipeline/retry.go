package pipeline

import (
	"context"
	"time"

	"ragpipe-go/pkg/log"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 200 * time.Millisecond
)

// withRetry 以有界的指数退避重试 fn。只用于幂等的远端调用
// （向量的 upsert 与按 ID 删除），其余调用失败立即上抛。
func withRetry(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var err error
	delay := retryBaseDelay
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		log.Warnf("[Retry] %s 第 %d 次尝试失败, %v 后重试: %v", label, attempt, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
