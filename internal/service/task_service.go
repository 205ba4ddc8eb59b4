package service

import (
	"PhonePilot/internal/models"
	"PhonePilot/internal/runner"
	"PhonePilot/internal/taskstore"
	"PhonePilot/pkg/logger"
	"PhonePilot/pkg/ratelimiter"
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited is returned when task creation exceeds the configured rate.
var ErrRateLimited = errors.New("too many automation tasks, try again later")

// ErrTaskNotFound is returned when the task id is unknown.
var ErrTaskNotFound = errors.New("task not found")

// TaskService provides core business logic for phone automation tasks: it
// creates lifecycle records, schedules background runs, and relays progress
// and cancellation between the HTTP layer and the running loop.
type TaskService struct {
	store   *taskstore.Store
	runner  *runner.Runner
	limiter ratelimiter.RateLimiter
	logger  *logger.Logger
}

// NewTaskService creates a new TaskService. limiter may be nil to disable
// creation rate limiting.
func NewTaskService(store *taskstore.Store, r *runner.Runner, limiter ratelimiter.RateLimiter, logger *logger.Logger) *TaskService {
	return &TaskService{
		store:   store,
		runner:  r,
		limiter: limiter,
		logger:  logger,
	}
}

// StartTask creates a task and schedules its automation run in the
// background. The returned snapshot is pending; the caller polls or cancels
// by id afterwards.
func (s *TaskService) StartTask(goal, app string, params map[string]interface{}, maxSteps int) (*models.PhoneTask, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("Task creation rejected by rate limiter")
		return nil, ErrRateLimited
	}

	task, err := s.store.Create(goal, app)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to create task in store")
		return nil, err
	}

	go s.execute(task.ID, goal, params, maxSteps)

	return task, nil
}

// execute drives one background run from pending to a terminal status.
// All writes go through the store so a concurrent cancellation can never be
// overwritten by a late completion.
func (s *TaskService) execute(taskID, goal string, params map[string]interface{}, maxSteps int) {
	log := logger.New("TaskService", taskID)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("automation run panicked: %v", r)
			log.WithError(models.ErrorInfo{Message: msg}).Error("Background run aborted")
			failed := models.TaskStatusFailed
			s.store.UpdateTask(taskID, taskstore.Update{Status: &failed, Error: &msg})
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.store.RegisterCancel(taskID, cancel)
	defer s.store.UnregisterCancel(taskID)

	running := models.TaskStatusRunning
	if s.store.UpdateTask(taskID, taskstore.Update{Status: &running}) == nil {
		log.Warn("Task vanished before the run started")
		return
	}

	result := s.runner.Run(ctx, goal, runner.Options{
		TaskID:   taskID,
		Params:   params,
		MaxSteps: maxSteps,
		OnProgress: func(p runner.Progress) {
			s.store.UpdateTask(taskID, taskstore.Update{
				StepsTaken:    &p.Step,
				CurrentStep:   &p.Description,
				TokensUsed:    &p.TotalTokens,
				EstimatedCost: &p.EstimatedCost,
			})
		},
		ShouldStop: func() bool {
			return s.store.IsCancelRequested(taskID)
		},
	})

	status := models.TaskStatusFailed
	if result.Success {
		status = models.TaskStatusCompleted
	}

	summary := map[string]interface{}{
		"success":      result.Success,
		"final_action": result.FinalAction,
		"steps_taken":  result.StepsTaken,
		"total_tokens": result.TotalTokensUsed,
		"total_cost":   result.TotalCost,
	}
	if result.ExtractedData != nil {
		summary["extracted_data"] = result.ExtractedData
	}
	if result.Error != "" {
		summary["error"] = result.Error
	}

	// If the task was cancelled meanwhile this update is a no-op; the store
	// keeps terminal states immutable.
	s.store.UpdateTask(taskID, taskstore.Update{
		Status:        &status,
		Result:        summary,
		Error:         &result.Error,
		StepsTaken:    &result.StepsTaken,
		TokensUsed:    &result.TotalTokensUsed,
		EstimatedCost: &result.TotalCost,
	})

	log.WithPayload(map[string]interface{}{
		"status":      string(status),
		"steps_taken": result.StepsTaken,
		"total_cost":  result.TotalCost,
	}).Info("Background run finished")
}

// GetTask retrieves a single task snapshot by id.
func (s *TaskService) GetTask(id string) (*models.PhoneTask, error) {
	task := s.store.Get(id)
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// ListTasks retrieves task summaries newest-first, optionally filtered by
// status ("active" selects pending plus running).
func (s *TaskService) ListTasks(status string, limit int) []*models.TaskSummary {
	tasks := s.store.List(status, limit)
	summaries := make([]*models.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, t.Summary())
	}
	return summaries
}

// CancelTask requests cancellation of a task. Cancelling an already-terminal
// task is a no-op; the message distinguishes the two outcomes.
func (s *TaskService) CancelTask(id string) (*models.PhoneTask, string, error) {
	before := s.store.Get(id)
	if before == nil {
		return nil, "", ErrTaskNotFound
	}
	if before.Status.Terminal() {
		return before, fmt.Sprintf("task already %s", before.Status), nil
	}

	task := s.store.RequestCancel(id)
	if task == nil {
		return nil, "", ErrTaskNotFound
	}
	return task, "task cancelled", nil
}
