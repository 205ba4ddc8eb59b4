package models

import "time"

// TaskStatus 定义了手机自动化任务的生命周期状态。
// 合法的状态迁移只有 pending → running → {completed, failed, cancelled}，
// 其中 cancelled 也可以直接从 pending 到达。终态任务不再变化。
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal 判断该状态是否为终态。
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// StatusFilterActive 是 list 操作的特殊过滤值，表示 pending 和 running 的并集。
const StatusFilterActive = "active"

// PhoneTask 是一次后台自动化运行对外可见的生命周期句柄。
// 它由 taskstore 独占管理：由调用方创建，由后台运行写入进度，终态后不再变化。
type PhoneTask struct {
	ID            string                 `json:"id"`                     // 短唯一标识
	Goal          string                 `json:"goal"`                   // 任务目标的自然语言描述
	Status        TaskStatus             `json:"status"`                 // 当前生命周期状态
	App           string                 `json:"app,omitempty"`          // 目标应用提示 (可选)
	CreatedAt     time.Time              `json:"created_at"`             // 创建时间
	UpdatedAt     time.Time              `json:"updated_at"`             // 最近一次更新时间
	StartedAt     *time.Time             `json:"started_at,omitempty"`   // 进入 running 的时间，仅设置一次
	CompletedAt   *time.Time             `json:"completed_at,omitempty"` // 进入终态的时间，仅设置一次
	Result        map[string]interface{} `json:"result,omitempty"`       // 运行结果摘要
	Error         string                 `json:"error,omitempty"`        // 运行级错误信息
	StepsTaken    int                    `json:"steps_taken"`            // 已执行的迭代次数
	CurrentStep   string                 `json:"current_step,omitempty"` // 当前步骤的人类可读描述
	TokensUsed    int                    `json:"tokens_used"`            // 累计 token 数（单调不减）
	EstimatedCost float64                `json:"estimated_cost"`         // 累计费用估算（单调不减）

	// CancelRequested 是协作式取消标志，仅供运行内部轮询，不对外序列化。
	CancelRequested bool `json:"-"`
}

// Clone 返回任务的一份可安全交给调用方的快照副本。
func (t *PhoneTask) Clone() *PhoneTask {
	cp := *t
	if t.Result != nil {
		result := make(map[string]interface{}, len(t.Result))
		for k, v := range t.Result {
			result[k] = v
		}
		cp.Result = result
	}
	return &cp
}

// TaskSummary 是 list 视图使用的精简表示。
type TaskSummary struct {
	ID            string     `json:"id"`
	Goal          string     `json:"goal"`
	Status        TaskStatus `json:"status"`
	App           string     `json:"app,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StepsTaken    int        `json:"steps_taken"`
	EstimatedCost float64    `json:"estimated_cost"`
}

// Summary 将任务转换为列表视图的精简表示，目标文本超长时截断。
func (t *PhoneTask) Summary() *TaskSummary {
	goal := t.Goal
	// 按字符截断，避免把多字节字符切成非法 UTF-8。
	if runes := []rune(goal); len(runes) > 100 {
		goal = string(runes[:100]) + "..."
	}
	return &TaskSummary{
		ID:            t.ID,
		Goal:          goal,
		Status:        t.Status,
		App:           t.App,
		CreatedAt:     t.CreatedAt,
		StepsTaken:    t.StepsTaken,
		EstimatedCost: t.EstimatedCost,
	}
}
