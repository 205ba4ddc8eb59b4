package executor

import (
	"PhonePilot/internal/device"
	"PhonePilot/internal/models"
	"PhonePilot/pkg/logger"
	"context"
	"fmt"
	"time"
)

// Executor 将一个 Decision 映射为恰好一次设备能力调用，并把结果归约为 (成功, 错误)。
// 它从不 panic，也从不返回 Go error：所有失败路径都归约为 (false, 原因)。
type Executor struct {
	client device.Client
	log    *logger.Logger

	// sleep 可在测试中替换，避免真实等待。
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建一个新的 Executor。
func New(client device.Client, log *logger.Logger) *Executor {
	return &Executor{
		client: client,
		log:    log,
		sleep:  sleepCtx,
	}
}

// Apply 执行一个决策对应的设备动作。
//
// 参数缺失属于本地校验失败，不是设备失败，两者在日志里可以区分。
// "done" 在本地恒为成功（无设备调用），"error" 在本地恒为失败并携带决策给出的消息。
func (e *Executor) Apply(ctx context.Context, d *models.Decision) (bool, string) {
	switch d.Action {
	case models.ActionTap:
		x, okX := intParam(d.Params, "x")
		y, okY := intParam(d.Params, "y")
		if !okX || !okY {
			return e.invalid(d, "tap requires x and y parameters")
		}
		return e.device(ctx, d, func() (*device.Result, error) {
			return e.client.Tap(ctx, x, y)
		})

	case models.ActionTypeText:
		text, _ := stringParam(d.Params, "text")
		if text == "" {
			return e.invalid(d, "type requires text parameter")
		}
		return e.device(ctx, d, func() (*device.Result, error) {
			return e.client.TypeText(ctx, text)
		})

	case models.ActionSwipe:
		direction, ok := stringParam(d.Params, "direction")
		if !ok || direction == "" {
			direction = "up"
		}
		return e.device(ctx, d, func() (*device.Result, error) {
			return e.client.Swipe(ctx, direction)
		})

	case models.ActionPressKey:
		key, _ := stringParam(d.Params, "key")
		if key == "" {
			return e.invalid(d, "press_key requires key parameter")
		}
		return e.device(ctx, d, func() (*device.Result, error) {
			return e.client.PressKey(ctx, key)
		})

	case models.ActionWait:
		seconds, ok := floatParam(d.Params, "seconds")
		if !ok || seconds <= 0 {
			seconds = 1
		}
		if err := e.sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
			return false, err.Error()
		}
		return true, ""

	case models.ActionDone:
		// 任务完成，无需设备调用。
		return true, ""

	case models.ActionError:
		// 决策服务判定任务无法完成。
		msg, _ := stringParam(d.Params, "message")
		if msg == "" {
			msg = "unknown error from LLM"
		}
		return false, msg

	default:
		return e.invalid(d, fmt.Sprintf("unknown action: %s", d.Action))
	}
}

// device 执行一次设备调用并归约其结果。
func (e *Executor) device(ctx context.Context, d *models.Decision, call func() (*device.Result, error)) (bool, string) {
	result, err := call()
	if err != nil {
		e.log.WithPayload(map[string]interface{}{
			"action":       string(d.Action),
			"failure_kind": "device",
		}).Warn("设备调用失败: " + err.Error())
		return false, err.Error()
	}
	if !result.Success {
		e.log.WithPayload(map[string]interface{}{
			"action":       string(d.Action),
			"failure_kind": "device",
		}).Warn("设备动作执行失败: " + result.Error)
		return false, result.Error
	}
	return true, ""
}

// invalid 记录并返回一次本地校验失败。
func (e *Executor) invalid(d *models.Decision, reason string) (bool, string) {
	e.log.WithPayload(map[string]interface{}{
		"action":       string(d.Action),
		"failure_kind": "validation",
	}).Warn("动作参数校验失败: " + reason)
	return false, reason
}

// sleepCtx 在可取消的前提下等待指定时长。
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// intParam 从参数表中取出一个整数参数。JSON 数字默认解码为 float64。
func intParam(params map[string]interface{}, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// floatParam 从参数表中取出一个数值参数。
func floatParam(params map[string]interface{}, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// stringParam 从参数表中取出一个字符串参数。
func stringParam(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
