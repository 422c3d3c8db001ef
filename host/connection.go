package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/streambridge/internal/ctxkeys"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/pool"
	"github.com/BaSui01/streambridge/internal/telemetry"
	"github.com/BaSui01/streambridge/registry"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/transport"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Connection host 端：持有本地数据源，按 consumer 的控制消息推进每个流
type Connection struct {
	ch      transport.Channel
	reg     *registry.Registry[*hostStream]
	cfg     Config
	mux     *Mux
	pool    *pool.GoroutinePool
	metrics *metrics.Collector
	logger  *zap.Logger

	// ctx 覆盖所有发送，Close 时取消
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewConnection creates the host side of ch.
func NewConnection(ch transport.Channel, cfg Config, opts ...Option) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ch:     ch,
		cfg:    cfg,
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "host_connection"))
	c.reg = registry.New[*hostStream](registry.WithRetiredCapacity(cfg.RetiredCapacity))
	return c
}

// Start registers id and begins pumping source. The stream outlives ctx;
// only Abort, exhaustion, failure or Close end it.
func (c *Connection) Start(ctx context.Context, id string, source stream.Source[[]byte], opts ...StartOption) error {
	if source == nil {
		return types.NewError(types.ErrInvalidRequest, "nil source").WithStreamID(id)
	}
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	s, err := c.register(ctx, id, o)
	if err != nil {
		return err
	}

	s.mu.Lock()
	finished := s.attachLocked(o.head, source)
	s.mu.Unlock()
	if finished {
		c.retire(s)
	}
	return nil
}

// register 创建流并登记，处于 ACTIVE 但尚未绑定数据源
func (c *Connection) register(ctx context.Context, id string, o startOptions) (*hostStream, error) {
	if id == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty correlation id")
	}
	if c.ctx.Err() != nil {
		return nil, types.NewError(types.ErrStreamClosed, "connection closed").WithStreamID(id)
	}

	ctx = ctxkeys.WithSide(ctxkeys.WithStreamID(context.WithoutCancel(ctx), id), metrics.SideHost)
	var attrs []attribute.KeyValue
	if o.url != "" {
		attrs = append(attrs, telemetry.AttrURL.String(o.url))
	}
	ctx, span := telemetry.StartStreamSpan(ctx, metrics.SideHost, id, attrs...)
	ctx, cancel := context.WithCancel(ctx)

	s := &hostStream{
		id:       id,
		conn:     c,
		logger:   ctxkeys.Logger(ctx, c.logger),
		ctx:      ctx,
		cancel:   cancel,
		span:     span,
		status:   stream.StatusActive,
		onDemand: o.onDemand,
	}
	if c.cfg.ChunksPerSecond > 0 {
		burst := c.cfg.ChunkBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(c.cfg.ChunksPerSecond), burst)
	}

	if _, err := c.reg.Register(id, s); err != nil {
		cancel()
		span.End()
		return nil, err
	}
	c.metrics.RecordStreamOpened(metrics.SideHost)
	s.logger.Debug("stream started", zap.Bool("on_demand", o.onDemand))
	return s, nil
}

// Suspend moves id to PAUSED. No new fetch starts until Resume; a fetch
// already in flight is still delivered.
func (c *Connection) Suspend(id string) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.suspendLocked()
	s.mu.Unlock()
	return nil
}

// Resume moves id back to ACTIVE and restarts its pump. No-op when ACTIVE.
func (c *Connection) Resume(id string) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.resumeLocked()
	s.mu.Unlock()
	return nil
}

// Grant adds n fetch credits to an on-demand stream.
func (c *Connection) Grant(id string, n int) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.onDemand && n > 0 {
		s.credits += n
		s.schedulePumpLocked()
	}
	s.mu.Unlock()
	return nil
}

// Abort ends id with a non-zero status, drops its source and sends end.
// Aborting a stream that already ended is a no-op.
func (c *Connection) Abort(id string, status int) error {
	if status == wire.StatusNormal {
		status = wire.StatusCancelled
	}
	s, err := c.lookup(id)
	if err != nil {
		if c.reg.Retired(id) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	finished := s.finishLocked(stream.StatusAborted, status)
	s.mu.Unlock()
	if finished {
		c.retire(s)
	}
	return nil
}

// Status reports the state of a live stream.
func (c *Connection) Status(id string) (stream.Status, error) {
	s, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Len returns the number of live streams.
func (c *Connection) Len() int {
	return c.reg.Len()
}

// Close aborts every live stream with StatusUnavailable and rejects new ones.
// It does not close the channel.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		for _, id := range c.reg.IDs() {
			_ = c.Abort(id, wire.StatusUnavailable)
		}
		c.reg.Close()
		c.cancel()
	})
	return nil
}

func (c *Connection) lookup(id string) (*hostStream, error) {
	return c.reg.Lookup(id)
}

// retire 移除终止的流；注册表保证 Release 恰好一次
func (c *Connection) retire(s *hostStream) {
	c.reg.Unregister(s.id)
}

func (c *Connection) send(msg *wire.Message) error {
	if err := c.ch.Send(c.ctx, msg); err != nil {
		if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
			return types.NewError(types.ErrTransportFailure, "channel closed").
				WithStreamID(msg.RequestID).WithCause(err)
		}
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	c.metrics.RecordMessage(metrics.SideHost, metrics.DirectionSent, string(msg.Type))
	return nil
}
