package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/streambridge/internal/ctxkeys"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/telemetry"
	"github.com/BaSui01/streambridge/registry"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/transport"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Client consumer 端：按关联 ID 把入站消息分发给代理，出站控制消息
// 经过有序的 outbox 由单个写协程发送，读协程从不因发送阻塞
type Client struct {
	ch      transport.Channel
	reg     *registry.Registry[*Proxy]
	cfg     Config
	outbox  *stream.Handoff[*wire.Message]
	metrics *metrics.Collector
	logger  *zap.Logger

	closeOnce sync.Once
}

// NewClient creates the consumer side of ch. Call Serve to start moving
// messages.
func NewClient(ch transport.Channel, cfg Config, opts ...Option) *Client {
	c := &Client{
		ch:     ch,
		cfg:    cfg,
		outbox: stream.NewHandoff[*wire.Message](),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "consumer_client"))
	c.reg = registry.New[*Proxy](registry.WithRetiredCapacity(cfg.RetiredCapacity))
	return c
}

// Open asks the host to serve req under a fresh correlation ID and returns
// the proxy for the response stream.
func (c *Client) Open(ctx context.Context, req wire.Request) (*Proxy, error) {
	if req.URL == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty url")
	}
	if c.cfg.OnDemand {
		req.OnDemand = true
	}
	id := uuid.NewString()

	opts := []AttachOption{func(o *attachOptions) { o.url = req.URL }}
	if req.OnDemand {
		opts = append(opts, WithOnDemand())
	}
	p, err := c.Attach(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(wire.NewRequest(id, req)); err != nil {
		p.fail(wire.StatusUnavailable, err)
		c.reg.Unregister(id)
		return nil, err
	}
	return p, nil
}

// Attach registers a proxy for a stream the host starts under id.
func (c *Client) Attach(ctx context.Context, id string, opts ...AttachOption) (*Proxy, error) {
	if id == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty correlation id")
	}
	if c.outbox.Done() {
		return nil, types.NewError(types.ErrStreamClosed, "client closed").WithStreamID(id)
	}
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx = ctxkeys.WithSide(ctxkeys.WithStreamID(context.WithoutCancel(ctx), id), metrics.SideConsumer)
	var attrs []attribute.KeyValue
	if o.url != "" {
		attrs = append(attrs, telemetry.AttrURL.String(o.url))
	}
	_, span := telemetry.StartStreamSpan(ctx, metrics.SideConsumer, id, attrs...)

	p := newProxy(c, id, o.onDemand, ctxkeys.Logger(ctx, c.logger), span)
	if _, err := c.reg.Register(id, p); err != nil {
		span.End()
		return nil, err
	}
	c.metrics.RecordStreamOpened(metrics.SideConsumer)
	p.logger.Debug("proxy attached", zap.Bool("on_demand", o.onDemand))
	return p, nil
}

// Lookup returns the live proxy for id.
func (c *Client) Lookup(id string) (*Proxy, error) {
	return c.reg.Lookup(id)
}

// Len returns the number of live proxies.
func (c *Client) Len() int {
	return c.reg.Len()
}

// Serve reads inbound messages and writes queued control messages until the
// channel closes or ctx ends. Proxies still live when it returns complete
// with a TRANSPORT_FAILURE error.
func (c *Client) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.readLoop(gctx)
	})
	g.Go(func() error {
		return c.writeLoop(gctx)
	})
	err := g.Wait()

	cause := types.NewError(types.ErrTransportFailure, "consumer channel stopped").WithCause(err)
	for _, id := range c.reg.IDs() {
		if p, lookupErr := c.reg.Lookup(id); lookupErr == nil {
			p.fail(wire.StatusUnavailable, cause)
		}
	}
	c.shutdown()
	return err
}

// Close cancels every live proxy and rejects new ones. Queued control
// messages, including the cancels, are still written by Serve.
func (c *Client) Close() error {
	for _, id := range c.reg.IDs() {
		if p, err := c.reg.Lookup(id); err == nil {
			p.Return()
		}
	}
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		c.reg.Close()
	})
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		msg, err := c.ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case types.IsCode(err, types.ErrInvalidMessage):
				c.metrics.RecordViolation(metrics.SideConsumer, string(types.ErrInvalidMessage))
				c.logger.Warn("dropping undecodable message", zap.Error(err))
				continue
			default:
				return err
			}
		}
		c.metrics.RecordMessage(metrics.SideConsumer, metrics.DirectionReceived, string(msg.Type))
		c.dispatch(msg)
	}
}

// writeLoop 是通道 consumer 端唯一的写入者
func (c *Client) writeLoop(ctx context.Context) error {
	for {
		res, err := c.outbox.Pull(ctx)
		if err != nil {
			// 读循环已结束
			return nil
		}
		if res.Done {
			return nil
		}
		msg := res.Value
		if err := c.ch.Send(ctx, msg); err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send %s: %w", msg, err)
		}
		c.metrics.RecordMessage(metrics.SideConsumer, metrics.DirectionSent, string(msg.Type))
	}
}

func (c *Client) dispatch(msg *wire.Message) {
	p, err := c.reg.Lookup(msg.RequestID)
	if err != nil {
		c.reject(msg, err)
		return
	}
	switch msg.Type {
	case wire.TypeHead:
		err = p.onHead(msg.Head)
	case wire.TypeBody:
		err = p.onBody(msg.Content)
	case wire.TypeEnd:
		err = p.onEnd(msg.Status)
	default:
		err = types.ProtocolViolation(msg.RequestID, fmt.Sprintf("%s message sent to consumer", msg.Type))
	}
	if err != nil {
		c.reject(msg, err)
	}
}

// reject 记录无法处理的消息；已退役 ID 的消息（例如 cancel 之后的 end）只记 debug
func (c *Client) reject(msg *wire.Message, err error) {
	code := types.GetErrorCode(err)
	if code == types.ErrNotFound && c.reg.Retired(msg.RequestID) {
		code = types.ErrLateMessage
	}
	c.metrics.RecordViolation(metrics.SideConsumer, string(code))

	fields := []zap.Field{zap.String("stream_id", msg.RequestID), zap.Stringer("message", msg)}
	if code == types.ErrLateMessage {
		c.logger.Debug("late data message", fields...)
		return
	}
	c.logger.Warn("data message rejected", append(fields, zap.Error(err))...)
}

// enqueue 按顺序排队控制消息，不阻塞
func (c *Client) enqueue(msg *wire.Message) error {
	if err := c.outbox.Push(msg); err != nil {
		return types.NewError(types.ErrStreamClosed, "client closed").WithStreamID(msg.RequestID)
	}
	return nil
}

func (c *Client) retire(p *Proxy) {
	c.reg.Unregister(p.id)
}
