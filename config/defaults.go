// =============================================================================
// 📦 streambridge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 通道类型
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Bridge:    DefaultBridgeConfig(),
		Transport: DefaultTransportConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         8080,
		MetricsPort:      9091,
		MetricsNamespace: "streambridge",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     0,
		ShutdownTimeout:  15 * time.Second,
		RateLimitRPS:     0,
		RateLimitBurst:   10,
	}
}

// DefaultBridgeConfig 返回默认桥接配置
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		HighWaterMark:   64,
		LowWaterMark:    16,
		IdleTimeout:     5 * time.Minute,
		ChunksPerSecond: 0,
		ChunkBurst:      1,
		MaxPumps:        256,
		PumpQueue:       1024,
		RetiredCapacity: 1024,
		OnDemand:        false,
	}
}

// DefaultTransportConfig 返回默认通道配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:      TransportWebSocket,
		URL:       "ws://localhost:8080/bridge",
		Path:      "/bridge",
		ReadLimit: 1 << 20,
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			Prefix:   "streambridge",
			Session:  "default",
		},
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
		ServiceName:  "streambridge",
		SampleRate:   0.1,
	}
}
