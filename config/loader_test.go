// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "streambridge.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

bridge:
  high_water_mark: 10
  low_water_mark: 2
  idle_timeout: 30s
  chunks_per_second: 25.5

transport:
  kind: redis
  redis:
    addr: "redis:6379"
    session: "edge-1"

log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10, cfg.Bridge.HighWaterMark)
	assert.Equal(t, 2, cfg.Bridge.LowWaterMark)
	assert.Equal(t, 30*time.Second, cfg.Bridge.IdleTimeout)
	assert.Equal(t, 25.5, cfg.Bridge.ChunksPerSecond)
	assert.Equal(t, TransportRedis, cfg.Transport.Kind)
	assert.Equal(t, "redis:6379", cfg.Transport.Redis.Addr)
	assert.Equal(t, "edge-1", cfg.Transport.Redis.Session)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未覆盖的字段保持默认值
	assert.Equal(t, "streambridge", cfg.Transport.Redis.Prefix)
	assert.Equal(t, 256, cfg.Bridge.MaxPumps)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("STREAMBRIDGE_SERVER_HTTP_PORT", "9000")
	t.Setenv("STREAMBRIDGE_BRIDGE_IDLE_TIMEOUT", "2m")
	t.Setenv("STREAMBRIDGE_BRIDGE_ON_DEMAND", "true")
	t.Setenv("STREAMBRIDGE_TRANSPORT_REDIS_SESSION", "from-env")
	t.Setenv("STREAMBRIDGE_TRANSPORT_READ_LIMIT", "4096")
	t.Setenv("STREAMBRIDGE_LOG_OUTPUT_PATHS", "stdout, /tmp/bridge.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.Bridge.IdleTimeout)
	assert.True(t, cfg.Bridge.OnDemand)
	assert.Equal(t, "from-env", cfg.Transport.Redis.Session)
	assert.Equal(t, int64(4096), cfg.Transport.ReadLimit)
	assert.Equal(t, []string{"stdout", "/tmp/bridge.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "streambridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("bridge:\n  max_pumps: 8\n"), 0644))
	t.Setenv("STREAMBRIDGE_BRIDGE_MAX_PUMPS", "16")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Bridge.MaxPumps)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("EDGE_SERVER_HTTP_PORT", "7000")

	cfg, err := NewLoader().WithEnvPrefix("EDGE").Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("STREAMBRIDGE_BRIDGE_IDLE_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAMBRIDGE_BRIDGE_IDLE_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		WithValidator(func(c *Config) error {
			c.Server.HTTPPort = 0
			return c.Validate()
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/streambridge.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [broken"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name: "inverted water marks",
			modify: func(c *Config) {
				c.Bridge.HighWaterMark = 4
				c.Bridge.LowWaterMark = 4
			},
			wantErr: "low_water_mark",
		},
		{
			name:   "water marks disabled",
			modify: func(c *Config) { c.Bridge.HighWaterMark, c.Bridge.LowWaterMark = 0, 0 },
		},
		{
			name:    "negative rate",
			modify:  func(c *Config) { c.Bridge.ChunksPerSecond = -1 },
			wantErr: "chunks_per_second",
		},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Transport.Kind = "carrier-pigeon" },
			wantErr: "unknown transport kind",
		},
		{
			name:    "websocket path",
			modify:  func(c *Config) { c.Transport.Path = "bridge" },
			wantErr: "transport.path",
		},
		{
			name: "redis without session",
			modify: func(c *Config) {
				c.Transport.Kind = TransportRedis
				c.Transport.Redis.Session = ""
			},
			wantErr: "transport.redis.session",
		},
		{
			name:    "sample rate",
			modify:  func(c *Config) { c.Telemetry.SampleRate = 2 },
			wantErr: "sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Transport.Kind = "x"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "; ")
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "streambridge.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8081\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8081, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("STREAMBRIDGE_TRANSPORT_KIND", "redis")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, TransportRedis, cfg.Transport.Kind)
}
