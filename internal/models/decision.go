package models

// ActionType 定义了决策服务可以选择的手机操作类型。
type ActionType string

const (
	ActionTap      ActionType = "tap"       // 点击屏幕上的一个坐标点
	ActionTypeText ActionType = "type"      // 在当前焦点输入框中输入文本
	ActionSwipe    ActionType = "swipe"     // 按方向滑动屏幕
	ActionPressKey ActionType = "press_key" // 按下一个物理/虚拟按键 (例如: "back", "home")
	ActionWait     ActionType = "wait"      // 等待指定秒数，不与设备交互
	ActionDone     ActionType = "done"      // 任务已完成，终止循环
	ActionError    ActionType = "error"     // 决策服务判定任务无法完成，终止循环
)

// Valid 判断该动作类型是否属于已定义的集合。
func (a ActionType) Valid() bool {
	switch a {
	case ActionTap, ActionTypeText, ActionSwipe, ActionPressKey, ActionWait, ActionDone, ActionError:
		return true
	}
	return false
}

// Terminal 判断该动作类型是否会结束控制循环。
func (a ActionType) Terminal() bool {
	return a == ActionDone || a == ActionError
}

// Decision 是决策服务针对一次迭代给出的动作决策。
// 每次迭代都会产生一个新的 Decision，它只随所属的 StepRecord 保留。
type Decision struct {
	Action    ActionType             `json:"action"`              // 动作类型
	Params    map[string]interface{} `json:"params,omitempty"`    // 动作参数 (例如: tap 的 x/y 坐标)
	Done      bool                   `json:"done"`                // 决策服务是否认为目标已达成
	Reasoning string                 `json:"reasoning,omitempty"` // 决策的自然语言理由
}
