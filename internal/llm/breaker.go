package llm

import (
	"PhonePilot/internal/models"
	"PhonePilot/pkg/circuitbreaker"
	"context"
)

// BreakerDecider 用熔断器包装另一个 Decider。
// 决策服务连续失败时熔断器打开，后续调用立即失败，
// 避免一次运行把步数预算全部耗在超时的后端调用上。
type BreakerDecider struct {
	inner   Decider
	breaker *circuitbreaker.Breaker
}

// WithBreaker 将 Decider 包装进给定的熔断器。
func WithBreaker(inner Decider, breaker *circuitbreaker.Breaker) *BreakerDecider {
	return &BreakerDecider{inner: inner, breaker: breaker}
}

// Decide 在熔断器保护下转发决策调用。
func (b *BreakerDecider) Decide(ctx context.Context, req *DecisionRequest) (*models.Decision, Usage, error) {
	var decision *models.Decision
	var usage Usage

	err := b.breaker.Execute(func() error {
		var innerErr error
		decision, usage, innerErr = b.inner.Decide(ctx, req)
		return innerErr
	})
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			return nil, Usage{}, &DecisionError{Backend: "breaker", Err: err}
		}
		return nil, usage, err
	}
	return decision, usage, nil
}
