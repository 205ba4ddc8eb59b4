package main

import (
	"PhonePilot/internal/api"
	"PhonePilot/internal/audit"
	"PhonePilot/internal/config"
	"PhonePilot/internal/device"
	"PhonePilot/internal/executor"
	"PhonePilot/internal/llm"
	"PhonePilot/internal/models"
	"PhonePilot/internal/runner"
	"PhonePilot/internal/service"
	"PhonePilot/internal/taskstore"
	"PhonePilot/pkg/circuitbreaker"
	"PhonePilot/pkg/logger"
	"PhonePilot/pkg/ratelimiter"
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	serviceLogger := logger.New("PhoneService", "")

	// Device bridge and health cache
	deviceTimeout, err := config.ParseDuration(cfg.Device.Timeout, 15*time.Second)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid device timeout")
	}
	healthTTL, err := config.ParseDuration(cfg.Device.HealthTTL, 30*time.Second)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid device health TTL")
	}
	bridge := device.NewBridgeClient(cfg.Device.BaseURL, deviceTimeout)
	healthCache := device.NewHealthCache(bridge, healthTTL)

	// Decision backend behind a circuit breaker
	decisionTimeout, err := config.ParseDuration(cfg.LLM.RequestTimeout, 60*time.Second)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid decision request timeout")
	}
	decider, err := llm.NewClient(cfg.LLM)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to create decision backend")
	}
	breaker := circuitbreaker.New(5, 2, 30*time.Second)
	guarded := llm.WithBreaker(decider, breaker)

	// Audit sinks; unconfigured channels are skipped
	auditLog := buildAuditLogger(cfg, serviceLogger)
	defer func() {
		if err := auditLog.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing audit sinks")
		}
	}()

	// Control loop
	stepDelay, err := config.ParseDuration(cfg.Runner.StepDelay, 500*time.Millisecond)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid step delay")
	}
	exec := executor.New(bridge, logger.New("ActionExecutor", ""))
	phoneRunner := runner.New(guarded, exec, bridge, auditLog, runner.Config{
		MaxSteps:        cfg.Runner.MaxSteps,
		StepDelay:       stepDelay,
		XMLLimit:        cfg.Runner.XMLLimit,
		Pricing:         cfg.Pricing,
		BasePrompt:      runner.LoadBasePrompt(cfg.Runner.BasePromptPath),
		DecisionTimeout: decisionTimeout,
	})

	// Task lifecycle store and service
	store := taskstore.New(cfg.TaskStore.MaxTasks)
	var limiter ratelimiter.RateLimiter
	if cfg.Middleware.RateLimiter.Enabled {
		limiter = ratelimiter.NewDualWindow(cfg.Middleware.RateLimiter.PerMinute, cfg.Middleware.RateLimiter.PerHour)
	}
	taskService := service.NewTaskService(store, phoneRunner, limiter, serviceLogger)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(taskService, healthCache, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Server forced to shutdown")
	}

	serviceLogger.Info("Server gracefully stopped")
}

// buildAuditLogger assembles the audit fan-out from the configured channels.
// With nothing configured it returns a no-op sink so the runner never has to
// care whether auditing is enabled.
func buildAuditLogger(cfg *config.AppConfig, serviceLogger *logger.Logger) audit.Logger {
	var sinks []audit.Logger

	if len(cfg.Audit.Kafka.Brokers) > 0 && cfg.Audit.Kafka.Topic != "" {
		sinks = append(sinks, audit.NewKafkaPublisher(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic))
		serviceLogger.Info("Kafka audit channel enabled")
	}

	if cfg.Audit.Mongo.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoSink, err := audit.NewMongoStore(ctx, cfg.Audit.Mongo.Address, cfg.Audit.Mongo.Database, cfg.Audit.Mongo.Collection)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to connect MongoDB audit store, continuing without it")
		} else {
			sinks = append(sinks, mongoSink)
			serviceLogger.Info("MongoDB audit store enabled")
		}
	}

	switch len(sinks) {
	case 0:
		return audit.Nop{}
	case 1:
		return sinks[0]
	default:
		return audit.NewMulti(sinks...)
	}
}
