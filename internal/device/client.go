package device

import (
	"PhonePilot/internal/models"
	"context"
)

// Result 是单次设备原语调用的结果。
type Result struct {
	Success bool   `json:"success"`          // 调用是否成功
	Output  string `json:"output,omitempty"` // 设备返回的输出（如果有）
	Error   string `json:"error,omitempty"`  // 失败时的错误信息
}

// Client 定义了控制循环消费的设备能力集。
// 每个方法对应一次设备原语调用；实现负责自身的传输协议和超时控制。
type Client interface {
	// CaptureScreen 采集当前屏幕状态（截图 + 可交互元素）。
	// 采集失败对一次运行而言是不可恢复的，调用方不得用过期状态顶替。
	CaptureScreen(ctx context.Context) (*models.ScreenState, error)

	// Tap 点击屏幕坐标 (x, y)。
	Tap(ctx context.Context, x, y int) (*Result, error)

	// TypeText 在当前焦点输入框中输入文本。
	TypeText(ctx context.Context, text string) (*Result, error)

	// Swipe 按方向滑动屏幕 ("up", "down", "left", "right")。
	Swipe(ctx context.Context, direction string) (*Result, error)

	// PressKey 按下一个按键 (例如: "back", "home", "enter")。
	PressKey(ctx context.Context, key string) (*Result, error)

	// Health 报告设备桥接是否可用。
	Health(ctx context.Context) (*Result, error)
}
