package runner

import (
	"PhonePilot/internal/audit"
	"PhonePilot/internal/config"
	"PhonePilot/internal/device"
	"PhonePilot/internal/executor"
	"PhonePilot/internal/llm"
	"PhonePilot/internal/models"
	"PhonePilot/pkg/logger"
	"context"
	"fmt"
	"time"
)

// auditTimeout bounds each audit write so a slow sink cannot stall the loop.
const auditTimeout = 2 * time.Second

// Config holds the control-loop settings for a Runner.
type Config struct {
	MaxSteps        int                  // step budget, default 20
	StepDelay       time.Duration        // pause between iterations so the UI settles
	XMLLimit        int                  // character cap for raw XML in the prompt
	Pricing         config.PricingConfig // per-1K-token prices for cost estimation
	BasePrompt      string               // base system prompt text
	DecisionTimeout time.Duration        // bound on each decision-service call, 0 = unbounded
}

// Runner drives the capture → decide → execute → audit loop for one goal.
// It is stateless across runs; every Run call is independent.
type Runner struct {
	decider llm.Decider
	exec    *executor.Executor
	device  device.Client
	audit   audit.Logger
	cfg     Config
}

// New creates a Runner.
func New(decider llm.Decider, exec *executor.Executor, dev device.Client, auditLog audit.Logger, cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = config.DefaultMaxSteps
	}
	if cfg.XMLLimit <= 0 {
		cfg.XMLLimit = config.DefaultXMLLimit
	}
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Runner{
		decider: decider,
		exec:    exec,
		device:  dev,
		audit:   auditLog,
		cfg:     cfg,
	}
}

// Progress is a snapshot of a run's accounting, delivered after each iteration.
type Progress struct {
	Step          int     // iterations completed so far
	Description   string  // human-readable description of the latest step
	TotalTokens   int     // cumulative token count, monotonically non-decreasing
	EstimatedCost float64 // cumulative cost estimate, monotonically non-decreasing
}

// Options customizes one run.
type Options struct {
	TaskID     string                 // lifecycle task id, used to key audit events
	Params     map[string]interface{} // caller-supplied task parameters
	MaxSteps   int                    // per-run step budget override
	OnProgress func(Progress)         // called after every iteration, may be nil
	ShouldStop func() bool            // cooperative cancellation check, may be nil
}

// Run executes the automation loop for a goal and returns the final result.
// The result is produced exactly once; partial progress is never discarded.
func (r *Runner) Run(ctx context.Context, goal string, opts Options) *models.RunResult {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.cfg.MaxSteps
	}

	log := logger.New("PhoneRunner", opts.TaskID)
	log.WithPayload(map[string]interface{}{"max_steps": maxSteps}).Info("starting phone automation run")

	prompt := systemPrompt(r.cfg.BasePrompt, goal, opts.Params)

	var (
		steps             []*models.StepRecord
		totalInputTokens  int
		totalOutputTokens int
		finalScreenshot   string
		extractedData     map[string]interface{}
	)

	finish := func(success bool, finalAction string, stepsTaken int, runErr string) *models.RunResult {
		totalTokens := totalInputTokens + totalOutputTokens
		return &models.RunResult{
			Success:               success,
			FinalAction:           finalAction,
			StepsTaken:            stepsTaken,
			TotalInputTokens:      totalInputTokens,
			TotalOutputTokens:     totalOutputTokens,
			TotalTokensUsed:       totalTokens,
			TotalCost:             TokenCost(totalInputTokens, totalOutputTokens, r.cfg.Pricing),
			Steps:                 steps,
			Error:                 runErr,
			FinalScreenshotBase64: finalScreenshot,
			ExtractedData:         extractedData,
		}
	}

	for stepNum := 1; stepNum <= maxSteps; stepNum++ {
		// Cancellation is cooperative: checked at the iteration boundary, never
		// preemptively inside an in-flight device or backend call.
		if opts.ShouldStop != nil && opts.ShouldStop() {
			log.WithPayload(map[string]interface{}{"step": stepNum}).Info("run cancelled before next iteration")
			return finish(false, "cancelled", stepNum-1, "cancelled by user")
		}
		if err := ctx.Err(); err != nil {
			return finish(false, "cancelled", stepNum-1, "cancelled by user")
		}

		started := time.Now()

		// 1. Capture the current device state. A capture failure is
		// unrecoverable for this run; stale state is never substituted.
		state, err := r.device.CaptureScreen(ctx)
		if err != nil {
			return r.abort(log, finish, &steps, stepNum, started, goal, opts.TaskID,
				fmt.Sprintf("screen capture failed: %v", err))
		}
		if state.ScreenshotBase64 != "" {
			finalScreenshot = state.ScreenshotBase64
		}

		// 2-3. Render the step context and ask the decision service.
		req := &llm.DecisionRequest{
			SystemPrompt: prompt,
			UserText: llm.BuildUserMessage(state, llm.StepContext{
				Goal:       goal,
				Params:     opts.Params,
				StepNumber: stepNum,
				MaxSteps:   maxSteps,
			}, r.cfg.XMLLimit),
			ImageBase64: state.ScreenshotBase64,
		}

		decision, usage, err := r.decide(ctx, req)
		if err != nil {
			return r.abort(log, finish, &steps, stepNum, started, goal, opts.TaskID,
				err.Error())
		}

		totalInputTokens += usage.InputTokens
		totalOutputTokens += usage.OutputTokens
		elapsed := time.Since(started)

		log.WithPayload(map[string]interface{}{
			"step":   stepNum,
			"action": string(decision.Action),
			"done":   decision.Done,
		}).Info("decision received")

		r.emit(&models.StepEvent{
			TaskID:       opts.TaskID,
			Kind:         models.EventRunnerStep,
			Timestamp:    time.Now().UTC(),
			Goal:         goal,
			Step:         stepNum,
			Action:       string(decision.Action),
			Params:       decision.Params,
			Done:         decision.Done,
			Success:      true,
			ElementCount: state.ElementCount,
			TokensUsed:   usage.InputTokens + usage.OutputTokens,
			DurationMs:   elapsed.Milliseconds(),
		})

		// 4. Execute the action. "done" needs no device call; its parameters
		// become the run's extracted-data payload.
		var success bool
		var execErr string
		if decision.Action == models.ActionDone {
			success = true
			if len(decision.Params) > 0 {
				extractedData = decision.Params
			}
		} else {
			success, execErr = r.exec.Apply(ctx, decision)
		}

		record := &models.StepRecord{
			StepNumber:       stepNum,
			Decision:         decision,
			Success:          success,
			Error:            execErr,
			ScreenshotBase64: state.ScreenshotBase64,
			InputTokens:      usage.InputTokens,
			OutputTokens:     usage.OutputTokens,
			ElapsedMs:        float64(elapsed.Milliseconds()),
		}
		steps = append(steps, record)

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Step:          stepNum,
				Description:   fmt.Sprintf("step %d/%d: %s", stepNum, maxSteps, decision.Action),
				TotalTokens:   totalInputTokens + totalOutputTokens,
				EstimatedCost: TokenCost(totalInputTokens, totalOutputTokens, r.cfg.Pricing),
			})
		}

		// 5-6. Terminal decisions end the loop.
		if decision.Done {
			log.WithPayload(map[string]interface{}{"step": stepNum}).Info("run completed")
			r.emit(&models.StepEvent{
				TaskID:     opts.TaskID,
				Kind:       models.EventRunnerComplete,
				Timestamp:  time.Now().UTC(),
				Goal:       goal,
				Step:       stepNum,
				Success:    true,
				TokensUsed: totalInputTokens + totalOutputTokens,
			})
			return finish(true, string(decision.Action), stepNum, "")
		}

		if decision.Action == models.ActionError {
			// The decision service declared the goal unachievable.
			r.emit(&models.StepEvent{
				TaskID:    opts.TaskID,
				Kind:      models.EventRunnerException,
				Timestamp: time.Now().UTC(),
				Goal:      goal,
				Step:      stepNum,
				Success:   false,
				Error:     execErr,
			})
			return finish(false, string(models.ActionError), stepNum, execErr)
		}

		// A failed execution does not abort the run: the next capture shows
		// the decision service what actually happened.
		if !success {
			log.WithPayload(map[string]interface{}{"step": stepNum}).Warn("step action failed: " + execErr)
			r.emit(&models.StepEvent{
				TaskID:     opts.TaskID,
				Kind:       models.EventRunnerActionFailed,
				Timestamp:  time.Now().UTC(),
				Goal:       goal,
				Step:       stepNum,
				Action:     string(decision.Action),
				Params:     decision.Params,
				Success:    false,
				Error:      execErr,
				TokensUsed: usage.InputTokens + usage.OutputTokens,
				DurationMs: elapsed.Milliseconds(),
			})
		}

		// Give the device UI time to settle before the next capture.
		if r.cfg.StepDelay > 0 {
			timer := time.NewTimer(r.cfg.StepDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return finish(false, "cancelled", stepNum, "cancelled by user")
			case <-timer.C:
			}
		}
	}

	// 7. Budget exhausted without a terminal decision.
	errMsg := fmt.Sprintf("task did not complete within %d steps", maxSteps)
	log.Warn(errMsg)
	r.emit(&models.StepEvent{
		TaskID:     opts.TaskID,
		Kind:       models.EventRunnerMaxSteps,
		Timestamp:  time.Now().UTC(),
		Goal:       goal,
		Success:    false,
		Error:      errMsg,
		TokensUsed: totalInputTokens + totalOutputTokens,
	})
	return finish(false, models.FinalActionMaxSteps, maxSteps, errMsg)
}

// decide forwards one decision call, bounded by the configured timeout so a
// hung backend cannot stall the run; a timed-out call is an unrecoverable
// exception like any other decision failure.
func (r *Runner) decide(ctx context.Context, req *llm.DecisionRequest) (*models.Decision, llm.Usage, error) {
	if r.cfg.DecisionTimeout <= 0 {
		return r.decider.Decide(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.DecisionTimeout)
	defer cancel()
	return r.decider.Decide(callCtx, req)
}

// abort records an unrecoverable exception as a synthetic final step and
// produces the failed result.
func (r *Runner) abort(
	log *logger.Logger,
	finish func(bool, string, int, string) *models.RunResult,
	steps *[]*models.StepRecord,
	stepNum int,
	started time.Time,
	goal, taskID string,
	msg string,
) *models.RunResult {
	log.WithError(models.ErrorInfo{Message: msg}).Error("unrecoverable error during run")

	*steps = append(*steps, &models.StepRecord{
		StepNumber: stepNum,
		Decision:   &models.Decision{Action: models.ActionError, Reasoning: msg},
		Success:    false,
		Error:      msg,
		ElapsedMs:  float64(time.Since(started).Milliseconds()),
	})

	r.emit(&models.StepEvent{
		TaskID:    taskID,
		Kind:      models.EventRunnerException,
		Timestamp: time.Now().UTC(),
		Goal:      goal,
		Step:      stepNum,
		Success:   false,
		Error:     msg,
	})

	return finish(false, string(models.ActionError), stepNum, msg)
}

// emit writes one audit event, best-effort. Audit failures never influence
// the run outcome; the write is bounded and detached from run cancellation.
func (r *Runner) emit(event *models.StepEvent) {
	auditCtx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := r.audit.LogStep(auditCtx, event); err != nil {
		logger.New("PhoneRunner", event.TaskID).Debug("audit write failed: " + err.Error())
	}
}
