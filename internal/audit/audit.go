package audit

import (
	"PhonePilot/internal/models"
	"context"
)

// Logger 定义了步骤审计事件的去向。
// 写入是"发射后不管"的：实现可以返回错误供调试日志使用，
// 但调用方绝不会因为审计失败而让迭代或运行失败。
type Logger interface {
	LogStep(ctx context.Context, event *models.StepEvent) error
	Close() error
}

// Nop 是一个丢弃所有事件的 Logger，用于未配置审计通道的部署和测试。
type Nop struct{}

func (Nop) LogStep(ctx context.Context, event *models.StepEvent) error { return nil }
func (Nop) Close() error                                               { return nil }

// Multi 将事件扇出到多个 Logger。单个通道的失败不影响其它通道。
type Multi struct {
	sinks []Logger
}

// NewMulti 创建一个扇出 Logger。
func NewMulti(sinks ...Logger) *Multi {
	return &Multi{sinks: sinks}
}

// LogStep 将事件写入所有通道，返回最后一个遇到的错误。
func (m *Multi) LogStep(ctx context.Context, event *models.StepEvent) error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.LogStep(ctx, event); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close 关闭所有通道。
func (m *Multi) Close() error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
