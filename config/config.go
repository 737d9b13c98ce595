// =============================================================================
// 📦 liverelay 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.Load("config.yaml")
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix 是所有环境变量覆盖的前缀。
const envPrefix = "LIVERELAY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 liverelay 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Upstream 上游 Gemini Live 配置
	Upstream UpstreamConfig `yaml:"upstream"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址
	Host string `yaml:"host"`
	// WebSocket 端口
	Port int `yaml:"port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port"`
	// 客户端 ping 间隔
	PingInterval time.Duration `yaml:"ping_interval"`
	// 客户端 ping 超时
	PingTimeout time.Duration `yaml:"ping_timeout"`
	// 读取超时（metrics 服务）
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时（metrics 服务）
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig 上游配置
type UpstreamConfig struct {
	// Live API 端点
	Endpoint string `yaml:"endpoint"`
	// API Key（建议通过环境变量注入）
	APIKey string `yaml:"api_key"`
	// 模型标识
	Model string `yaml:"model"`
	// 期望响应模态: TEXT, AUDIO
	ResponseModalities []string `yaml:"response_modalities"`
	// 系统指令
	SystemInstruction string `yaml:"system_instruction"`
	// 握手超时
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// 单次发送超时
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 格式: json, console
	Format string `yaml:"format"`
}

// =============================================================================
// 🧱 默认值
// =============================================================================

// DefaultSystemInstruction 是未配置系统指令时使用的默认值。
const DefaultSystemInstruction = "You are MedForce AI, a helpful meeting assistant. Respond naturally to questions and provide helpful information. Always respond in English."

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8765,
			MetricsPort:     9090,
			PingInterval:    20 * time.Second,
			PingTimeout:     10 * time.Second,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Model:              "models/gemini-2.0-flash-live-001",
			ResponseModalities: []string{"TEXT"},
			SystemInstruction:  DefaultSystemInstruction,
			HandshakeTimeout:   10 * time.Second,
			SendTimeout:        10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// =============================================================================
// 📥 加载流程
// =============================================================================

// Load 加载配置：默认值 → YAML 文件（可选）→ 环境变量覆盖 → 校验。
// path 为空时跳过文件阶段。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 应用环境变量覆盖。API Key 额外接受 GEMINI_API_KEY，
// 与上游生态的习惯保持一致。
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setInt(&cfg.Server.MetricsPort, "SERVER_METRICS_PORT")
	setDuration(&cfg.Server.PingInterval, "SERVER_PING_INTERVAL")
	setDuration(&cfg.Server.PingTimeout, "SERVER_PING_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	setString(&cfg.Upstream.Endpoint, "UPSTREAM_ENDPOINT")
	setString(&cfg.Upstream.APIKey, "UPSTREAM_API_KEY")
	setString(&cfg.Upstream.Model, "UPSTREAM_MODEL")
	setString(&cfg.Upstream.SystemInstruction, "UPSTREAM_SYSTEM_INSTRUCTION")
	setDuration(&cfg.Upstream.HandshakeTimeout, "UPSTREAM_HANDSHAKE_TIMEOUT")
	if v := os.Getenv(envPrefix + "_UPSTREAM_RESPONSE_MODALITIES"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.ToUpper(strings.TrimSpace(parts[i]))
		}
		cfg.Upstream.ResponseModalities = parts
	}
	if cfg.Upstream.APIKey == "" {
		cfg.Upstream.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + "_" + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + "_" + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + "_" + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// =============================================================================
// ✅ 校验
// =============================================================================

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Server.Port == c.Server.MetricsPort {
		return fmt.Errorf("server port and metrics port must differ: %d", c.Server.Port)
	}
	for _, m := range c.Upstream.ResponseModalities {
		if m != "TEXT" && m != "AUDIO" {
			return fmt.Errorf("invalid response modality: %s", m)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

// ListenAddr 返回 WebSocket 监听地址。
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddr 返回 Metrics 监听地址。
func (c *ServerConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}
