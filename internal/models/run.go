package models

// StepRecord 是控制循环中单次迭代的不可变记录。
// 它在该迭代的动作执行完成后创建，之后不再修改，按迭代顺序追加到所属运行的序列中。
type StepRecord struct {
	StepNumber       int       `json:"step_number"`                 // 迭代序号，从 1 开始
	Decision         *Decision `json:"decision"`                    // 本次迭代的决策
	Success          bool      `json:"success"`                     // 动作是否执行成功
	Error            string    `json:"error,omitempty"`             // 执行失败时的错误信息
	ScreenshotBase64 string    `json:"screenshot_base64,omitempty"` // 本次迭代采集到的截图
	InputTokens      int       `json:"input_tokens"`                // 本次决策调用消耗的输入 token 数
	OutputTokens     int       `json:"output_tokens"`               // 本次决策调用消耗的输出 token 数
	ElapsedMs        float64   `json:"elapsed_ms"`                  // 本次迭代耗时（毫秒）
}

// RunResult 是一次完整控制循环运行的最终结果。
// 运行结束（完成、步数耗尽或不可恢复异常）时一次性生成，此后不可变。
type RunResult struct {
	Success               bool                   `json:"success"`                          // 目标是否达成
	FinalAction           string                 `json:"final_action"`                     // 终止时的动作类型
	StepsTaken            int                    `json:"steps_taken"`                      // 实际执行的迭代次数
	TotalInputTokens      int                    `json:"total_input_tokens"`               // 累计输入 token 数
	TotalOutputTokens     int                    `json:"total_output_tokens"`              // 累计输出 token 数
	TotalTokensUsed       int                    `json:"total_tokens_used"`                // 累计 token 总数
	TotalCost             float64                `json:"total_cost"`                       // 按配置单价估算的费用 (USD)
	Steps                 []*StepRecord          `json:"steps"`                            // 按顺序排列的迭代记录
	Error                 string                 `json:"error,omitempty"`                  // 运行级错误信息
	FinalScreenshotBase64 string                 `json:"final_screenshot_base64,omitempty"` // 最后一次采集到的截图
	ExtractedData         map[string]interface{} `json:"extracted_data,omitempty"`         // 终止决策携带的结构化数据
}

// FinalActionMaxSteps 是步数预算耗尽时 RunResult.FinalAction 的取值。
const FinalActionMaxSteps = "max_steps_reached"
