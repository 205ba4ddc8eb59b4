package api

import (
	"PhonePilot/internal/device"
	"PhonePilot/internal/models"
	"PhonePilot/internal/service"
	"PhonePilot/internal/taskstore"
	"PhonePilot/pkg/logger"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// API provides handlers for the phone automation service.
type API struct {
	service *service.TaskService
	health  *device.HealthCache
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(svc *service.TaskService, health *device.HealthCache, logger *logger.Logger) *API {
	return &API{
		service: svc,
		health:  health,
		logger:  logger,
	}
}

// StartTaskHandler handles the submission of a new automation task.
func (a *API) StartTaskHandler(c *gin.Context) {
	var payload struct {
		Goal     string                 `json:"goal"`
		App      string                 `json:"app"`
		Params   map[string]interface{} `json:"params"`
		MaxSteps int                    `json:"max_steps"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	task, err := a.service.StartTask(payload.Goal, payload.App, payload.Params, payload.MaxSteps)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, taskstore.ErrEmptyGoal):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start task"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}

// GetTaskHandler handles requests to get a single task by its ID.
func (a *API) GetTaskHandler(c *gin.Context) {
	task, err := a.service.GetTask(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasksHandler handles requests to list task summaries.
func (a *API) ListTasksHandler(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	tasks := a.service.ListTasks(status, limit)
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// CancelTaskHandler handles cancellation requests for a task.
func (a *API) CancelTaskHandler(c *gin.Context) {
	task, message, err := a.service.CancelTask(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "message": message})
}

// DeviceHealthHandler reports whether the device bridge is reachable. The
// result is cached for a short TTL to keep pollers from hammering the bridge.
func (a *API) DeviceHealthHandler(c *gin.Context) {
	if a.health == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": "device bridge not configured"})
		return
	}

	result, err := a.health.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": result.Success, "detail": result.Output})
}
