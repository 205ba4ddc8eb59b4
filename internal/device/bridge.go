package device

import (
	"PhonePilot/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BridgeClient 是 Client 的 HTTP 实现，面向运行在设备侧的无障碍桥接服务。
// 桥接服务自身的协议不在本系统的规格范围内；这里只做最薄的请求/响应封装。
type BridgeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridgeClient 创建一个新的 BridgeClient。
func NewBridgeClient(baseURL string, timeout time.Duration) *BridgeClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BridgeClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CaptureScreen 采集当前屏幕状态。
func (c *BridgeClient) CaptureScreen(ctx context.Context) (*models.ScreenState, error) {
	body, err := c.post(ctx, "/screen", nil)
	if err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	var state models.ScreenState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("screen capture returned malformed state: %w", err)
	}
	return &state, nil
}

// Tap 点击屏幕坐标。
func (c *BridgeClient) Tap(ctx context.Context, x, y int) (*Result, error) {
	return c.primitive(ctx, "/tap", map[string]interface{}{"x": x, "y": y})
}

// TypeText 输入文本。
func (c *BridgeClient) TypeText(ctx context.Context, text string) (*Result, error) {
	return c.primitive(ctx, "/type", map[string]interface{}{"text": text})
}

// Swipe 按方向滑动屏幕。
func (c *BridgeClient) Swipe(ctx context.Context, direction string) (*Result, error) {
	return c.primitive(ctx, "/swipe", map[string]interface{}{"direction": direction})
}

// PressKey 按下一个按键。
func (c *BridgeClient) PressKey(ctx context.Context, key string) (*Result, error) {
	return c.primitive(ctx, "/key", map[string]interface{}{"key": key})
}

// Health 探测桥接服务是否可用。
func (c *BridgeClient) Health(ctx context.Context) (*Result, error) {
	return c.primitive(ctx, "/health", nil)
}

// primitive 发送一次原语调用并解析统一的结果结构。
func (c *BridgeClient) primitive(ctx context.Context, path string, params map[string]interface{}) (*Result, error) {
	body, err := c.post(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("bridge returned malformed result for %s: %w", path, err)
	}
	return &result, nil
}

func (c *BridgeClient) post(ctx context.Context, path string, params map[string]interface{}) ([]byte, error) {
	var payload io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}
