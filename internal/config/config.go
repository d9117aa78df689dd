package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合客户端、桥接服务与开发后端的配置项。
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	DevBackend DevBackendConfig
	Log        LogConfig
	AI         AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	dev, err := loadDevBackendConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Backend:    backend,
		DevBackend: dev,
		Log:        loadLogConfig(),
		AI:         ai,
	}, nil
}

// ServerConfig 描述本地桥接 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	addr, err := parseAddr("PORT", "8090")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{Addr: addr}, nil
}

// BackendConfig 描述健康管理后端 REST 接口。
type BackendConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	baseURL := strings.TrimRight(getEnvOrDefault("HEALTH_API_BASE_URL", "http://localhost:8080/api"), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return BackendConfig{}, fmt.Errorf("invalid HEALTH_API_BASE_URL value: %q", baseURL)
	}

	// 智能体可能会调用多个工具，默认给足时间。
	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("HEALTH_API_TIMEOUT"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return BackendConfig{}, fmt.Errorf("invalid HEALTH_API_TIMEOUT value: %d", *override)
		}
		timeoutSeconds = *override
	}

	return BackendConfig{
		BaseURL: baseURL,
		Token:   strings.TrimSpace(os.Getenv("HEALTH_API_TOKEN")),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// DevBackendConfig 描述内置开发后端。
type DevBackendConfig struct {
	Addr  string
	Token string
}

func loadDevBackendConfig() (DevBackendConfig, error) {
	addr, err := parseAddr("DEV_BACKEND_ADDR", "8080")
	if err != nil {
		return DevBackendConfig{}, err
	}
	return DevBackendConfig{
		Addr:  addr,
		Token: strings.TrimSpace(os.Getenv("DEV_BACKEND_TOKEN")),
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Env   string
	Level string
}

// IsDevelopment returns true when logs should be human readable.
func (c LogConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Env:   getEnvOrDefault("APP_ENV", "development"),
		Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}
}

// AIConfig 描述开发后端使用的大模型配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// parseAddr 解析监听地址，允许 "8080"、":8080" 或 "127.0.0.1:8080"。
func parseAddr(key, defaultPort string) (string, error) {
	port := getEnvOrDefault(key, defaultPort)

	if strings.Contains(port, ":") {
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ":" + port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
