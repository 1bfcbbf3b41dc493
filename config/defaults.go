// =============================================================================
// 📦 img3d 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Meshy:     DefaultMeshyConfig(),
		Tracker:   DefaultTrackerConfig(),
		Auth:      DefaultAuthConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		MaxUploadBytes:     10 << 20,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultMeshyConfig 返回默认 Meshy 配置
func DefaultMeshyConfig() MeshyConfig {
	return MeshyConfig{
		BaseURL:       "https://api.meshy.ai/openapi/v1",
		Timeout:       60 * time.Second,
		EnablePBR:     true,
		ShouldRemesh:  true,
		ShouldTexture: true,
	}
}

// DefaultTrackerConfig 返回默认跟踪配置
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PollInterval:      2 * time.Second,
		Deadline:          15 * time.Minute,
		MaxPollRetries:    2,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
		MonotonicProgress: true,
		CompleteOnSuccess: true,
		IdleTTL:           30 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Issuer:     "img3d",
		SessionTTL: 30 * 24 * time.Hour,
		AdminName:  "Admin",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "img3d:",
		TaskTTL:      24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "img3d",
		Password:        "",
		Name:            "img3d.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
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
		ServiceName:  "img3d",
		SampleRate:   0.1,
	}
}
