package device

import (
	"context"
	"sync"
	"time"
)

// HealthCache 在一段 TTL 内缓存设备健康检查的结果，避免高频轮询把桥接服务打满。
// 它是一个显式构造、显式传递的组件，持有自己的刷新时间戳。
type HealthCache struct {
	client Client
	ttl    time.Duration

	mu          sync.Mutex
	lastChecked time.Time
	lastResult  *Result
}

// NewHealthCache 创建一个新的 HealthCache。
func NewHealthCache(client Client, ttl time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &HealthCache{client: client, ttl: ttl}
}

// Check 返回设备健康状态。缓存未过期时直接返回上次结果。
func (h *HealthCache) Check(ctx context.Context) (*Result, error) {
	h.mu.Lock()
	if h.lastResult != nil && time.Since(h.lastChecked) < h.ttl {
		cached := *h.lastResult
		h.mu.Unlock()
		return &cached, nil
	}
	h.mu.Unlock()

	result, err := h.client.Health(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.lastResult = result
	h.lastChecked = time.Now()
	h.mu.Unlock()

	return result, nil
}

// Invalidate 丢弃缓存的结果，下次 Check 将强制探测。
func (h *HealthCache) Invalidate() {
	h.mu.Lock()
	h.lastResult = nil
	h.mu.Unlock()
}
