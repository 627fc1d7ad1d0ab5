// =============================================================================
// 📦 VisionFlow 默认配置
// =============================================================================
package config

import "time"

// Default agent prompts.
const (
	DefaultInstructions = "You are a helpful voice assistant with vision capabilities.\n" +
		"If the user provides a URL to an image, fetch and analyze it.\n" +
		"You can also receive images directly from the user."

	DefaultGreetingInstruction = "You are a tutor.Your task is to teach the students about their studies and also help them where they are stuck."

	DefaultByteStreamTopic = "test"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		Ingest:    DefaultIngestConfig(),
		Fetch:     DefaultFetchConfig(),
		Artifacts: DefaultArtifactsConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		LLM:       DefaultLLMConfig(),
		Auth:      AuthConfig{Issuer: "visionflow"},
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
	}
}

// DefaultAgentConfig 返回默认视觉助手配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Instructions:        DefaultInstructions,
		GreetingInstruction: DefaultGreetingInstruction,
		ByteStreamTopic:     DefaultByteStreamTopic,
		AutoReply:           true,
		ReplyTimeout:        60 * time.Second,
		MaxConcurrentTasks:  16,
		ImageHints:          []string{"jpg", "png", "jpeg", "gif"},
	}
}

// DefaultIngestConfig 返回默认字节流接收配置
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		DrainTimeout: 30 * time.Second,
		MaxBytes:     15 << 20,
		ChunkBuffer:  16,
	}
}

// DefaultFetchConfig 返回默认抓取配置
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:      15 * time.Second,
		MaxBytes:     15 << 20,
		RatePerSec:   1,
		Burst:        3,
		BlockPrivate: true,
	}
}

// DefaultArtifactsConfig 返回默认制品保留配置
func DefaultArtifactsConfig() ArtifactsConfig {
	return ArtifactsConfig{
		Dir:             ".",
		Index:           "file",
		MaxAge:          24 * time.Hour,
		MaxFiles:        1000,
		CleanupInterval: 10 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（未启用）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:    10,
		KeyPrefix:   "visionflow",
		SnapshotTTL: 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（未启用）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "visionflow",
		Name:            "visionflow",
		SSLMode:         "disable",
		LogLevel:        "silent",
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultLLMConfig 返回默认模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		Timeout:     60 * time.Second,
		Temperature: 0.7,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "visionflow",
		SampleRate:   0.1,
	}
}
