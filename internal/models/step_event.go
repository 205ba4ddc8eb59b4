package models

import "time"

// StepEventKind 定义了审计事件的种类。
type StepEventKind string

const (
	EventRunnerStep         StepEventKind = "runner_step"          // 一次迭代的决策
	EventRunnerActionFailed StepEventKind = "runner_action_failed" // 动作执行失败
	EventRunnerComplete     StepEventKind = "runner_complete"      // 运行成功结束
	EventRunnerException    StepEventKind = "runner_exception"     // 运行因异常终止
	EventRunnerMaxSteps     StepEventKind = "runner_max_steps"     // 步数预算耗尽
)

// StepEvent 定义了发送到审计通道的统一事件结构。
// 审计写入是尽力而为的：任何失败都不得影响运行本身。
type StepEvent struct {
	TaskID       string                 `json:"task_id" bson:"task_id"`
	Kind         StepEventKind          `json:"kind" bson:"kind"`
	Timestamp    time.Time              `json:"timestamp" bson:"timestamp"`
	Goal         string                 `json:"goal,omitempty" bson:"goal,omitempty"`
	Step         int                    `json:"step,omitempty" bson:"step,omitempty"`
	Action       string                 `json:"action,omitempty" bson:"action,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty" bson:"params,omitempty"`
	Done         bool                   `json:"done,omitempty" bson:"done,omitempty"`
	Success      bool                   `json:"success" bson:"success"`
	Error        string                 `json:"error,omitempty" bson:"error,omitempty"`
	ElementCount int                    `json:"element_count,omitempty" bson:"element_count,omitempty"`
	TokensUsed   int                    `json:"tokens_used,omitempty" bson:"tokens_used,omitempty"`
	DurationMs   int64                  `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
}
