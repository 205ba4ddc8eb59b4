package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ServerConfig 定义了 HTTP 服务的配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8080")
}

// LLMConfig 定义了决策服务后端的配置。
// Provider 为空时，后端由 Model 的前缀决定 (gemini* → gemini, gpt*/o* → openai, 否则 ollama)。
type LLMConfig struct {
	Provider       string  `yaml:"provider"`       // 后端提供商 ("openai", "gemini", "ollama")，可选
	Model          string  `yaml:"model"`          // 模型名称
	APIKey         string  `yaml:"apiKey"`         // API 密钥
	BaseURL        string  `yaml:"baseURL"`        // 服务基准 URL (ollama / openai 兼容服务)
	Temperature    float32 `yaml:"temperature"`    // 采样温度，偏低以获得更确定的动作
	MaxTokens      int     `yaml:"maxTokens"`      // 单次决策的最大输出 token 数
	RequestTimeout string  `yaml:"requestTimeout"` // 单次决策调用的超时 (例如: "60s")
}

// PricingConfig 定义了按 1K token 计价的费用估算单价。
// 单价随模型定价演进而调整，费用公式本身保持稳定。
type PricingConfig struct {
	InputPer1K  float64 `yaml:"inputPer1K"`  // 每 1K 输入 token 的价格 (USD)
	OutputPer1K float64 `yaml:"outputPer1K"` // 每 1K 输出 token 的价格 (USD)
}

// RunnerConfig 定义了控制循环的配置。
type RunnerConfig struct {
	MaxSteps       int    `yaml:"maxSteps"`       // 步数预算，默认 20
	StepDelay      string `yaml:"stepDelay"`      // 迭代之间的延迟，给 UI 留出稳定时间 (例如: "500ms")
	XMLLimit       int    `yaml:"xmlLimit"`       // 原始 XML 注入提示词前的截断长度（字符数）
	BasePromptPath string `yaml:"basePromptPath"` // 基础系统提示词文件路径，缺失时使用内置提示词
}

// DeviceConfig 定义了设备桥接服务的配置。
type DeviceConfig struct {
	BaseURL   string `yaml:"baseURL"`   // 无障碍桥接服务地址
	Timeout   string `yaml:"timeout"`   // 单次设备调用的超时 (例如: "15s")
	HealthTTL string `yaml:"healthTTL"` // 健康检查缓存的有效期 (例如: "30s")
}

// KafkaAuditConfig 定义了 Kafka 审计通道的配置。
type KafkaAuditConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 审计事件主题
}

// MongoAuditConfig 定义了 MongoDB 审计存储的配置。
type MongoAuditConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 审计事件集合名称
}

// AuditConfig 定义了审计事件的去向。未配置的通道会被跳过。
type AuditConfig struct {
	Kafka KafkaAuditConfig `yaml:"kafka"` // Kafka 审计通道配置
	Mongo MongoAuditConfig `yaml:"mongo"` // MongoDB 审计存储配置
}

// TaskStoreConfig 定义了任务生命周期存储的配置。
type TaskStoreConfig struct {
	MaxTasks int `yaml:"maxTasks"` // 内存中保留的最大任务数，默认 100
}

// RateLimiterConfig 定义了任务创建限流的配置。
type RateLimiterConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"perMinute"` // 每分钟允许创建的任务数
	PerHour   int  `yaml:"perHour"`   // 每小时允许创建的任务数
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	LLM        LLMConfig        `yaml:"llm"`        // 决策服务配置
	Pricing    PricingConfig    `yaml:"pricing"`    // token 计价配置
	Runner     RunnerConfig     `yaml:"runner"`     // 控制循环配置
	Device     DeviceConfig     `yaml:"device"`     // 设备桥接配置
	Audit      AuditConfig      `yaml:"audit"`      // 审计通道配置
	TaskStore  TaskStoreConfig  `yaml:"taskStore"`  // 任务存储配置
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
}

// 默认值，与原有部署保持一致。
const (
	DefaultMaxSteps    = 20
	DefaultMaxTasks    = 100
	DefaultXMLLimit    = 4000
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig // 声明一个AppConfig变量用于存储解析后的配置。
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil // 返回解析后的配置和nil错误。
}

// applyDefaults 为未配置的字段填充默认值。
func (c *AppConfig) applyDefaults() {
	if c.Runner.MaxSteps <= 0 {
		c.Runner.MaxSteps = DefaultMaxSteps
	}
	if c.Runner.XMLLimit <= 0 {
		c.Runner.XMLLimit = DefaultXMLLimit
	}
	if c.Runner.StepDelay == "" {
		c.Runner.StepDelay = "500ms"
	}
	if c.TaskStore.MaxTasks <= 0 {
		c.TaskStore.MaxTasks = DefaultMaxTasks
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = DefaultTemperature
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
}

// ParseDuration 解析一个可能为空的时长字符串，为空时返回给定的默认值。
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("无效的时长 '%s': %w", s, err)
	}
	return d, nil
}
