package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ragpipe-go/pkg/log"
)

// Saga 记录一次跨存储操作中每个已完成步骤的补偿动作。
// 任一后续步骤失败时，按与执行相反的顺序运行全部补偿动作，
// 把两个远端（向量索引与登记库）尽力回退到操作前的状态。
// 补偿本身也可能失败；失败会被记录并汇总返回，但不会重试——
// 系统此时处于"已知可能不一致"状态，由调用方把错误暴露给上游。
type Saga struct {
	undos []undoStep
}

type undoStep struct {
	label string
	fn    func(ctx context.Context) error
}

// Defer 登记一个已完成步骤的补偿动作。
func (s *Saga) Defer(label string, fn func(ctx context.Context) error) {
	s.undos = append(s.undos, undoStep{label: label, fn: fn})
}

// Rollback 按登记的相反顺序执行全部补偿动作。
// 返回所有补偿失败的聚合错误；全部成功时返回 nil。
func (s *Saga) Rollback(ctx context.Context) error {
	var errs []error
	for i := len(s.undos) - 1; i >= 0; i-- {
		step := s.undos[i]
		log.Infof("[Saga] 执行补偿动作: %s", step.label)
		if err := step.fn(ctx); err != nil {
			log.Errorf("[Saga] 补偿动作 '%s' 失败, 数据可能处于不一致状态: %v", step.label, err)
			errs = append(errs, fmt.Errorf("补偿 '%s' 失败: %w", step.label, err))
		}
	}
	s.undos = nil
	return errors.Join(errs...)
}

// Len 返回当前登记的补偿动作数量。
func (s *Saga) Len() int {
	return len(s.undos)
}
