package host

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/config"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/pool"
	"github.com/BaSui01/streambridge/registry"
	"github.com/BaSui01/streambridge/wire"
)

// Config 控制 host 端流的行为
type Config struct {
	// IdleTimeout 流处于 PAUSED 超过该时长则以 StatusTimeout 中止，0 表示不限制
	IdleTimeout time.Duration
	// ChunksPerSecond body 发送速率，0 表示不限速
	ChunksPerSecond float64
	// ChunkBurst 限速突发量
	ChunkBurst int
	// RetiredCapacity 记住的已退役 ID 数量
	RetiredCapacity int
}

// DefaultConfig returns the host defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:     5 * time.Minute,
		ChunkBurst:      1,
		RetiredCapacity: registry.DefaultRetiredCapacity,
	}
}

// ConfigFromBridge maps the bridge section of the application config.
func ConfigFromBridge(cfg config.BridgeConfig) Config {
	return Config{
		IdleTimeout:     cfg.IdleTimeout,
		ChunksPerSecond: cfg.ChunksPerSecond,
		ChunkBurst:      cfg.ChunkBurst,
		RetiredCapacity: cfg.RetiredCapacity,
	}
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records stream and message metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithPool runs pumps on p. A pump the pool rejects aborts its stream with
// StatusUnavailable.
func WithPool(p *pool.GoroutinePool) Option {
	return func(c *Connection) { c.pool = p }
}

// WithMux routes request messages to protocol handlers.
func WithMux(m *Mux) Option {
	return func(c *Connection) { c.mux = m }
}

// StartOption configures one stream.
type StartOption func(*startOptions)

type startOptions struct {
	head     *wire.Head
	onDemand bool
	url      string
}

// WithHead sends head before any body.
func WithHead(h wire.Head) StartOption {
	return func(o *startOptions) {
		o.head = &h
	}
}

// WithOnDemand makes the stream fetch only against pull credits.
func WithOnDemand() StartOption {
	return func(o *startOptions) { o.onDemand = true }
}
