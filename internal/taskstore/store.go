package taskstore

import (
	"PhonePilot/internal/config"
	"PhonePilot/internal/models"
	"PhonePilot/pkg/logger"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// evictionHeadroom is how far below capacity a retention sweep aims, so
// back-to-back creates do not trigger a sweep every time.
const evictionHeadroom = 10

// ErrEmptyGoal is returned when a task is created without a goal.
var ErrEmptyGoal = errors.New("task goal must not be empty")

// Update carries the partial fields for a task update; nil fields are left
// untouched.
type Update struct {
	Status        *models.TaskStatus
	Result        map[string]interface{}
	Error         *string
	StepsTaken    *int
	CurrentStep   *string
	TokensUsed    *int
	EstimatedCost *float64
}

// Store is a bounded, in-memory registry of phone automation tasks.
//
// It owns every task for the task's whole life: callers only ever see
// snapshot copies, and all mutation goes through the store's lock so
// concurrent pollers and cancellation requests observe consistent state.
// The registry is process-lifetime only; a restart loses all records.
type Store struct {
	mu       sync.Mutex
	tasks    map[string]*models.PhoneTask
	cancels  map[string]context.CancelFunc
	maxTasks int
	log      *logger.Logger
}

// New creates a Store retaining at most maxTasks tasks.
func New(maxTasks int) *Store {
	if maxTasks <= 0 {
		maxTasks = config.DefaultMaxTasks
	}
	return &Store{
		tasks:    make(map[string]*models.PhoneTask),
		cancels:  make(map[string]context.CancelFunc),
		maxTasks: maxTasks,
		log:      logger.New("TaskStore", ""),
	}
}

// Create registers a new task in pending state and returns its snapshot.
// An empty goal is rejected before any background work starts.
func (s *Store) Create(goal, app string) (*models.PhoneTask, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, ErrEmptyGoal
	}

	id := uuid.NewString()[:8] // short id for convenience
	now := time.Now().UTC()
	task := &models.PhoneTask{
		ID:        id,
		Goal:      goal,
		Status:    models.TaskStatusPending,
		App:       app,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.evictLocked()
	s.tasks[id] = task
	s.mu.Unlock()

	s.log.WithPayload(map[string]interface{}{"task_id": id}).Info("created phone task")
	return task.Clone(), nil
}

// Get returns a snapshot of the task, or nil if the id is unknown.
func (s *Store) Get(id string) *models.PhoneTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return task.Clone()
}

// List returns task snapshots newest-first, optionally filtered by status.
// The special filter "active" selects the union of pending and running.
func (s *Store) List(status string, limit int) []*models.PhoneTask {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	tasks := make([]*models.PhoneTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		switch {
		case status == "":
			tasks = append(tasks, t.Clone())
		case status == models.StatusFilterActive:
			if t.Status == models.TaskStatusPending || t.Status == models.TaskStatusRunning {
				tasks = append(tasks, t.Clone())
			}
		default:
			if string(t.Status) == status {
				tasks = append(tasks, t.Clone())
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}

// UpdateTask merges the provided fields into the task and returns the updated
// snapshot, or nil if the id is unknown. A task already in a terminal status
// is never mutated; the unchanged snapshot is returned instead, which is what
// keeps a late completion from overwriting a cancellation.
func (s *Store) UpdateTask(id string, upd Update) *models.PhoneTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil
	}
	if task.Status.Terminal() {
		return task.Clone()
	}

	now := time.Now().UTC()
	task.UpdatedAt = now

	if upd.Status != nil {
		task.Status = *upd.Status
		if *upd.Status == models.TaskStatusRunning && task.StartedAt == nil {
			started := now
			task.StartedAt = &started
		}
		if upd.Status.Terminal() && task.CompletedAt == nil {
			completed := now
			task.CompletedAt = &completed
		}
	}
	if upd.Result != nil {
		task.Result = upd.Result
	}
	if upd.Error != nil {
		task.Error = *upd.Error
	}
	if upd.StepsTaken != nil {
		task.StepsTaken = *upd.StepsTaken
	}
	if upd.CurrentStep != nil {
		task.CurrentStep = *upd.CurrentStep
	}
	if upd.TokensUsed != nil {
		task.TokensUsed = *upd.TokensUsed
	}
	if upd.EstimatedCost != nil {
		task.EstimatedCost = *upd.EstimatedCost
	}

	return task.Clone()
}

// RequestCancel flags a task for cooperative cancellation and signals its
// registered cancel handle, if any. A task already in a terminal status is
// returned unchanged. Unknown ids return nil.
func (s *Store) RequestCancel(id string) *models.PhoneTask {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if task.Status.Terminal() {
		snapshot := task.Clone()
		s.mu.Unlock()
		return snapshot
	}

	task.CancelRequested = true
	cancel := s.cancels[id]

	now := time.Now().UTC()
	task.Status = models.TaskStatusCancelled
	task.Error = "cancelled by user"
	task.UpdatedAt = now
	if task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	snapshot := task.Clone()
	s.mu.Unlock()

	// Best-effort interrupt of the in-flight run; the polled flag remains the
	// guaranteed stop signal at the next iteration boundary.
	if cancel != nil {
		cancel()
	}

	s.log.WithPayload(map[string]interface{}{"task_id": id}).Info("cancelled phone task")
	return snapshot
}

// IsCancelRequested reports whether cancellation was requested for the task.
// It is cheap and intended for polling between loop iterations.
func (s *Store) IsCancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return ok && task.CancelRequested
}

// RegisterCancel associates a cancel handle with a running task.
func (s *Store) RegisterCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
}

// UnregisterCancel removes the cancel handle when the run finishes.
func (s *Store) UnregisterCancel(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// Len returns the number of retained tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// evictLocked removes the oldest terminal tasks once the store is at
// capacity, aiming for some headroom below the cap. Pending and running
// tasks are never evicted. Caller must hold the lock.
func (s *Store) evictLocked() {
	if len(s.tasks) < s.maxTasks {
		return
	}

	terminal := make([]*models.PhoneTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status.Terminal() {
			terminal = append(terminal, t)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		ti, tj := terminal[i], terminal[j]
		a, b := ti.CreatedAt, tj.CreatedAt
		if ti.CompletedAt != nil {
			a = *ti.CompletedAt
		}
		if tj.CompletedAt != nil {
			b = *tj.CompletedAt
		}
		return a.Before(b)
	})

	toRemove := len(s.tasks) - s.maxTasks + evictionHeadroom
	removed := 0
	for _, t := range terminal {
		if removed >= toRemove {
			break
		}
		delete(s.tasks, t.ID)
		delete(s.cancels, t.ID)
		removed++
	}

	if removed > 0 {
		s.log.WithPayload(map[string]interface{}{"evicted": removed}).Debug("swept old terminal tasks")
	}
}
