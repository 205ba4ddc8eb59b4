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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDevice returns a canned screen state and records primitive calls.
type fakeDevice struct {
	mu         sync.Mutex
	captures   int
	taps       int
	captureErr error
	tapResult  *device.Result
}

func (f *fakeDevice) CaptureScreen(ctx context.Context) (*models.ScreenState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &models.ScreenState{
		ScreenshotBase64: fmt.Sprintf("shot-%d", f.captures),
		XML:              "<hierarchy/>",
		ElementCount:     3,
	}, nil
}

func (f *fakeDevice) Tap(ctx context.Context, x, y int) (*device.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps++
	if f.tapResult != nil {
		return f.tapResult, nil
	}
	return &device.Result{Success: true}, nil
}

func (f *fakeDevice) TypeText(ctx context.Context, text string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}

func (f *fakeDevice) Swipe(ctx context.Context, direction string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}

func (f *fakeDevice) PressKey(ctx context.Context, key string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}

func (f *fakeDevice) Health(ctx context.Context) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}

// scriptedDecider replays a fixed sequence of decisions with fixed usage.
type scriptedDecider struct {
	mu        sync.Mutex
	decisions []*models.Decision
	usages    []llm.Usage
	errAt     int // 1-based call index that fails, 0 = never
	calls     int
}

func (s *scriptedDecider) Decide(ctx context.Context, req *llm.DecisionRequest) (*models.Decision, llm.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.errAt > 0 && s.calls == s.errAt {
		return nil, llm.Usage{}, errors.New("decision service unavailable")
	}
	idx := s.calls - 1
	if idx >= len(s.decisions) {
		idx = len(s.decisions) - 1
	}
	usage := llm.Usage{InputTokens: 100, OutputTokens: 20}
	if idx < len(s.usages) {
		usage = s.usages[idx]
	}
	return s.decisions[idx], usage, nil
}

// recordingAudit captures every emitted step event.
type recordingAudit struct {
	mu     sync.Mutex
	events []*models.StepEvent
}

func (r *recordingAudit) LogStep(ctx context.Context, event *models.StepEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) kinds() []models.StepEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.StepEventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestRunner(decider llm.Decider, dev device.Client, auditLog audit.Logger) *Runner {
	exec := executor.New(dev, logger.New("test", ""))
	return New(decider, exec, dev, auditLog, Config{
		MaxSteps: 5,
		Pricing:  config.PricingConfig{InputPer1K: 0.005, OutputPer1K: 0.015},
	})
}

func tapDecision() *models.Decision {
	return &models.Decision{
		Action: models.ActionTap,
		Params: map[string]interface{}{"x": float64(100), "y": float64(200)},
	}
}

func doneDecision() *models.Decision {
	return &models.Decision{Action: models.ActionDone, Done: true}
}

func TestRunCompletesOnDone(t *testing.T) {
	dev := &fakeDevice{}
	auditLog := &recordingAudit{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{tapDecision(), doneDecision()},
	}
	r := newTestRunner(decider, dev, auditLog)

	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.FinalAction != string(models.ActionDone) {
		t.Errorf("Expected final action done, got %q", result.FinalAction)
	}
	if result.StepsTaken != 2 {
		t.Errorf("Expected 2 steps, got %d", result.StepsTaken)
	}
	if len(result.Steps) != 2 {
		t.Errorf("Expected 2 step records, got %d", len(result.Steps))
	}
	if dev.taps != 1 {
		t.Errorf("Expected exactly 1 tap, got %d", dev.taps)
	}
	if result.FinalScreenshotBase64 != "shot-2" {
		t.Errorf("Expected the last capture as final screenshot, got %q", result.FinalScreenshotBase64)
	}

	// Token totals are the sums over steps; cost follows the per-1K prices.
	if result.TotalInputTokens != 200 || result.TotalOutputTokens != 40 {
		t.Errorf("Wrong token totals: in=%d out=%d", result.TotalInputTokens, result.TotalOutputTokens)
	}
	if result.TotalTokensUsed != 240 {
		t.Errorf("Expected 240 total tokens, got %d", result.TotalTokensUsed)
	}
	wantCost := 0.0016 // 200/1000*0.005 + 40/1000*0.015, rounded to 6 decimals
	if result.TotalCost != wantCost {
		t.Errorf("Expected cost %v, got %v", wantCost, result.TotalCost)
	}

	kinds := auditLog.kinds()
	if len(kinds) != 3 || kinds[2] != models.EventRunnerComplete {
		t.Errorf("Expected step, step, complete events, got %v", kinds)
	}
}

func TestRunExtractsDataFromDoneParams(t *testing.T) {
	dev := &fakeDevice{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{{
			Action: models.ActionDone,
			Done:   true,
			Params: map[string]interface{}{"temperature": "21C"},
		}},
	}
	r := newTestRunner(decider, dev, &recordingAudit{})

	result := r.Run(context.Background(), "read the temperature", Options{TaskID: "t1"})
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if result.ExtractedData == nil || result.ExtractedData["temperature"] != "21C" {
		t.Errorf("Expected extracted data from done params, got %v", result.ExtractedData)
	}
}

func TestRunContinuesAfterConsecutiveFailedActions(t *testing.T) {
	dev := &fakeDevice{tapResult: &device.Result{Success: false, Error: "element not found"}}
	auditLog := &recordingAudit{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{tapDecision(), tapDecision(), doneDecision()},
	}
	r := newTestRunner(decider, dev, auditLog)

	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if !result.Success {
		t.Fatalf("Failed iterations must not abort the run, got error %q", result.Error)
	}
	if result.StepsTaken != 3 {
		t.Errorf("Expected 3 steps, got %d", result.StepsTaken)
	}
	// Both failures live on their step records, never on the run itself.
	for i := 0; i < 2; i++ {
		if !strings.Contains(result.Steps[i].Error, "element not found") {
			t.Errorf("Expected the failure recorded on step %d, got %q", i+1, result.Steps[i].Error)
		}
		if result.Steps[i].Success {
			t.Errorf("Step %d should be marked failed", i+1)
		}
	}
	if result.Error != "" {
		t.Errorf("The run-level error must stay empty, got %q", result.Error)
	}

	failureEvents := 0
	for _, k := range auditLog.kinds() {
		if k == models.EventRunnerActionFailed {
			failureEvents++
		}
	}
	if failureEvents != 2 {
		t.Errorf("Expected 2 runner_action_failed audit events, got %d", failureEvents)
	}
}

func TestRunStopsAtStepBudget(t *testing.T) {
	dev := &fakeDevice{}
	auditLog := &recordingAudit{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{tapDecision()},
	}
	r := newTestRunner(decider, dev, auditLog)

	result := r.Run(context.Background(), "never finishes", Options{TaskID: "t1", MaxSteps: 3})

	if result.Success {
		t.Fatal("Expected failure on budget exhaustion")
	}
	if result.FinalAction != models.FinalActionMaxSteps {
		t.Errorf("Expected final action %q, got %q", models.FinalActionMaxSteps, result.FinalAction)
	}
	if result.StepsTaken != 3 {
		t.Errorf("Expected exactly 3 steps, got %d", result.StepsTaken)
	}
	if !strings.Contains(result.Error, "3 steps") {
		t.Errorf("Expected the budget in the error message, got %q", result.Error)
	}

	kinds := auditLog.kinds()
	if kinds[len(kinds)-1] != models.EventRunnerMaxSteps {
		t.Errorf("Expected the run to end with a max-steps event, got %v", kinds)
	}
}

func TestRunAbortsOnCaptureFailure(t *testing.T) {
	dev := &fakeDevice{captureErr: errors.New("bridge unreachable")}
	decider := &scriptedDecider{decisions: []*models.Decision{doneDecision()}}
	r := newTestRunner(decider, dev, &recordingAudit{})

	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if result.Success {
		t.Fatal("Expected failure on capture error")
	}
	if result.FinalAction != string(models.ActionError) {
		t.Errorf("Expected final action error, got %q", result.FinalAction)
	}
	if !strings.Contains(result.Error, "screen capture failed") {
		t.Errorf("Expected a capture failure message, got %q", result.Error)
	}
	if decider.calls != 0 {
		t.Errorf("No decision should be requested after a capture failure, got %d calls", decider.calls)
	}
	// The synthetic final step preserves the partial trajectory.
	if len(result.Steps) != 1 || result.Steps[0].Decision.Action != models.ActionError {
		t.Errorf("Expected one synthetic error step, got %+v", result.Steps)
	}
}

func TestRunAbortsOnDeciderFailure(t *testing.T) {
	dev := &fakeDevice{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{tapDecision()},
		errAt:     2,
	}
	r := newTestRunner(decider, dev, &recordingAudit{})

	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if result.Success {
		t.Fatal("Expected failure on decider error")
	}
	if result.StepsTaken != 2 {
		t.Errorf("Expected the abort recorded at step 2, got %d", result.StepsTaken)
	}
	if !strings.Contains(result.Error, "decision service unavailable") {
		t.Errorf("Expected the decider error preserved, got %q", result.Error)
	}
	// Token usage from the successful first step is not discarded.
	if result.TotalTokensUsed != 120 {
		t.Errorf("Expected 120 tokens from the first step, got %d", result.TotalTokensUsed)
	}
}

func TestRunAbortsOnErrorAction(t *testing.T) {
	dev := &fakeDevice{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{{
			Action: models.ActionError,
			Params: map[string]interface{}{"message": "login required"},
		}},
	}
	r := newTestRunner(decider, dev, &recordingAudit{})

	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if result.Success {
		t.Fatal("An error action must fail the run")
	}
	if result.FinalAction != string(models.ActionError) {
		t.Errorf("Expected final action error, got %q", result.FinalAction)
	}
	if !strings.Contains(result.Error, "login required") {
		t.Errorf("Expected the declared message, got %q", result.Error)
	}
	if result.StepsTaken != 1 {
		t.Errorf("Expected the run to stop immediately, got %d steps", result.StepsTaken)
	}
}

func TestRunHonoursShouldStop(t *testing.T) {
	dev := &fakeDevice{}
	decider := &scriptedDecider{decisions: []*models.Decision{tapDecision()}}
	r := newTestRunner(decider, dev, &recordingAudit{})

	stops := 0
	result := r.Run(context.Background(), "open settings", Options{
		TaskID: "t1",
		ShouldStop: func() bool {
			stops++
			return stops > 1 // allow the first iteration, stop before the second
		},
	})

	if result.Success {
		t.Fatal("Expected a cancelled run to fail")
	}
	if result.FinalAction != "cancelled" {
		t.Errorf("Expected final action cancelled, got %q", result.FinalAction)
	}
	if result.StepsTaken != 1 {
		t.Errorf("Expected one completed step before the stop, got %d", result.StepsTaken)
	}
	if result.Error != "cancelled by user" {
		t.Errorf("Expected cancellation error, got %q", result.Error)
	}
}

// hangingDecider blocks until its call context is cancelled.
type hangingDecider struct{}

func (hangingDecider) Decide(ctx context.Context, req *llm.DecisionRequest) (*models.Decision, llm.Usage, error) {
	<-ctx.Done()
	return nil, llm.Usage{}, ctx.Err()
}

func TestRunBoundsEachDecisionCall(t *testing.T) {
	dev := &fakeDevice{}
	exec := executor.New(dev, logger.New("test", ""))
	r := New(hangingDecider{}, exec, dev, &recordingAudit{}, Config{
		MaxSteps:        5,
		DecisionTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	result := r.Run(context.Background(), "open settings", Options{TaskID: "t1"})

	if result.Success {
		t.Fatal("Expected a timed-out decision call to fail the run")
	}
	if !strings.Contains(result.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("Expected a deadline error, got %q", result.Error)
	}
	if result.StepsTaken != 1 {
		t.Errorf("A timed-out call is unrecoverable, expected 1 step, got %d", result.StepsTaken)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run hung for %v despite the per-call timeout", elapsed)
	}
}

func TestRunReportsProgressEachIteration(t *testing.T) {
	dev := &fakeDevice{}
	decider := &scriptedDecider{
		decisions: []*models.Decision{tapDecision(), doneDecision()},
	}
	r := newTestRunner(decider, dev, &recordingAudit{})

	var progress []Progress
	r.Run(context.Background(), "open settings", Options{
		TaskID:     "t1",
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})

	if len(progress) != 2 {
		t.Fatalf("Expected 2 progress reports, got %d", len(progress))
	}
	if progress[0].Step != 1 || progress[1].Step != 2 {
		t.Errorf("Progress steps out of order: %+v", progress)
	}
	if progress[0].Description != "step 1/5: tap" {
		t.Errorf("Unexpected step description %q", progress[0].Description)
	}
	// Accounting is monotonically non-decreasing across reports.
	if progress[1].TotalTokens < progress[0].TotalTokens {
		t.Error("Token totals must not decrease")
	}
	if progress[1].EstimatedCost < progress[0].EstimatedCost {
		t.Error("Cost estimates must not decrease")
	}
}
