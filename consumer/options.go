package consumer

import (
	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/config"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/registry"
)

// Config 控制 consumer 端代理的缓冲与背压
type Config struct {
	// HighWaterMark 缓冲达到该值时发送 pause，0 表示不做水位背压
	HighWaterMark int
	// LowWaterMark 暂停后缓冲降到该值时发送 resume
	LowWaterMark int
	// OnDemand 为 true 时 Open 的请求都以按需模式发起
	OnDemand bool
	// RetiredCapacity 记住的已退役 ID 数量
	RetiredCapacity int
}

// DefaultConfig returns the consumer defaults.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:   64,
		LowWaterMark:    16,
		RetiredCapacity: registry.DefaultRetiredCapacity,
	}
}

// ConfigFromBridge maps the bridge section of the application config.
func ConfigFromBridge(cfg config.BridgeConfig) Config {
	return Config{
		HighWaterMark:   cfg.HighWaterMark,
		LowWaterMark:    cfg.LowWaterMark,
		OnDemand:        cfg.OnDemand,
		RetiredCapacity: cfg.RetiredCapacity,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records stream and message metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// AttachOption configures one proxy.
type AttachOption func(*attachOptions)

type attachOptions struct {
	onDemand bool
	url      string
}

// WithOnDemand makes the proxy send one pull for every Next that finds the
// buffer empty. The host stream must have been started on demand as well.
func WithOnDemand() AttachOption {
	return func(o *attachOptions) { o.onDemand = true }
}
