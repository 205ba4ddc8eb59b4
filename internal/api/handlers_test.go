package api

import (
	"PhonePilot/internal/audit"
	"PhonePilot/internal/device"
	"PhonePilot/internal/executor"
	"PhonePilot/internal/llm"
	"PhonePilot/internal/models"
	"PhonePilot/internal/runner"
	"PhonePilot/internal/service"
	"PhonePilot/internal/taskstore"
	"PhonePilot/pkg/logger"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type stubDevice struct {
	healthy bool
}

func (s *stubDevice) CaptureScreen(ctx context.Context) (*models.ScreenState, error) {
	return &models.ScreenState{ScreenshotBase64: "shot", ElementCount: 1}, nil
}
func (s *stubDevice) Tap(ctx context.Context, x, y int) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}
func (s *stubDevice) TypeText(ctx context.Context, text string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}
func (s *stubDevice) Swipe(ctx context.Context, direction string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}
func (s *stubDevice) PressKey(ctx context.Context, key string) (*device.Result, error) {
	return &device.Result{Success: true}, nil
}
func (s *stubDevice) Health(ctx context.Context) (*device.Result, error) {
	return &device.Result{Success: s.healthy, Output: "bridge v1"}, nil
}

type instantDone struct{}

func (instantDone) Decide(ctx context.Context, req *llm.DecisionRequest) (*models.Decision, llm.Usage, error) {
	return &models.Decision{Action: models.ActionDone, Done: true}, llm.Usage{InputTokens: 10, OutputTokens: 5}, nil
}

type denyAll struct{}

func (denyAll) Allow() bool { return false }

func newTestRouter(t *testing.T, limited bool) (*gin.Engine, *taskstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dev := &stubDevice{healthy: true}
	exec := executor.New(dev, logger.New("test", ""))
	r := runner.New(instantDone{}, exec, dev, audit.Nop{}, runner.Config{MaxSteps: 5})
	store := taskstore.New(10)

	var svc *service.TaskService
	if limited {
		svc = service.NewTaskService(store, r, denyAll{}, logger.New("test", ""))
	} else {
		svc = service.NewTaskService(store, r, nil, logger.New("test", ""))
	}

	router := gin.New()
	RegisterRoutes(router, NewAPI(svc, device.NewHealthCache(dev, time.Minute), logger.New("test", "")))
	return router, store
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func waitTerminal(t *testing.T, store *taskstore.Store, id string) *models.PhoneTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if task := store.Get(id); task != nil && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Task %s never reached a terminal status", id)
	return nil
}

func TestStartTaskEndpoint(t *testing.T) {
	router, store := newTestRouter(t, false)

	w := doJSON(router, http.MethodPost, "/api/v1/phone/tasks", gin.H{"goal": "open settings"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if len(resp.TaskID) != 8 {
		t.Errorf("Expected an 8-char task id, got %q", resp.TaskID)
	}

	waitTerminal(t, store, resp.TaskID)
}

func TestStartTaskEndpointRejectsEmptyGoal(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := doJSON(router, http.MethodPost, "/api/v1/phone/tasks", gin.H{"goal": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty goal, got %d", w.Code)
	}

	w = doJSON(router, http.MethodPost, "/api/v1/phone/tasks", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a missing body, got %d", w.Code)
	}
}

func TestStartTaskEndpointRateLimited(t *testing.T) {
	router, _ := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/phone/tasks", gin.H{"goal": "open settings"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 when the limiter rejects, got %d", w.Code)
	}
}

func TestGetTaskEndpoint(t *testing.T) {
	router, store := newTestRouter(t, false)
	task, _ := store.Create("poll me", "")

	w := doJSON(router, http.MethodGet, "/api/v1/phone/tasks/"+task.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var got models.PhoneTask
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if got.ID != task.ID || got.Goal != "poll me" {
		t.Errorf("Wrong task returned: %+v", got)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/phone/tasks/unknown1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown id, got %d", w.Code)
	}
}

func TestListTasksEndpoint(t *testing.T) {
	router, store := newTestRouter(t, false)
	store.Create("first", "")
	store.Create("second", "")

	w := doJSON(router, http.MethodGet, "/api/v1/phone/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Tasks []models.TaskSummary `json:"tasks"`
		Count int                  `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if resp.Count != 2 || len(resp.Tasks) != 2 {
		t.Errorf("Expected 2 tasks, got count=%d len=%d", resp.Count, len(resp.Tasks))
	}

	w = doJSON(router, http.MethodGet, "/api/v1/phone/tasks?status=active&limit=1", nil)
	var limited struct {
		Tasks []models.TaskSummary `json:"tasks"`
	}
	json.Unmarshal(w.Body.Bytes(), &limited)
	if len(limited.Tasks) != 1 {
		t.Errorf("Expected the limit applied, got %d tasks", len(limited.Tasks))
	}
}

func TestCancelTaskEndpoint(t *testing.T) {
	router, store := newTestRouter(t, false)
	task, _ := store.Create("cancel me", "")

	w := doJSON(router, http.MethodPost, "/api/v1/phone/tasks/"+task.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Task    models.PhoneTask `json:"task"`
		Message string           `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if resp.Task.Status != models.TaskStatusCancelled {
		t.Errorf("Expected cancelled, got %s", resp.Task.Status)
	}
	if resp.Message != "task cancelled" {
		t.Errorf("Expected a cancelled-now message, got %q", resp.Message)
	}

	// Repeating the cancel reports the terminal status.
	w = doJSON(router, http.MethodPost, "/api/v1/phone/tasks/"+task.ID+"/cancel", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message != "task already cancelled" {
		t.Errorf("Expected an already-cancelled message, got %q", resp.Message)
	}

	w = doJSON(router, http.MethodPost, "/api/v1/phone/tasks/unknown1/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown id, got %d", w.Code)
	}
}

func TestDeviceHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false)

	w := doJSON(router, http.MethodGet, "/api/v1/phone/device/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Connected bool   `json:"connected"`
		Detail    string `json:"detail"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if !resp.Connected || resp.Detail != "bridge v1" {
		t.Errorf("Unexpected health payload: %+v", resp)
	}
}
