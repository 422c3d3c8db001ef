package consumer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/telemetry"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Proxy 是远端流在 consumer 端的惰性序列，单次遍历。
// 值按到达顺序缓冲；缓冲为空时 Next 挂起直到 body 或 end 到达。
type Proxy struct {
	id     string
	client *Client
	logger *zap.Logger
	span   trace.Span

	q         *stream.Handoff[[]byte]
	headReady chan struct{}

	mu        sync.Mutex
	head      *wire.Head
	headSeen  bool
	bodySeen  bool
	headOnce  sync.Once
	done      bool
	status    int
	paused    bool
	onDemand  bool
	received  int
	delivered int
}

func newProxy(c *Client, id string, onDemand bool, logger *zap.Logger, span trace.Span) *Proxy {
	return &Proxy{
		id:        id,
		client:    c,
		logger:    logger,
		span:      span,
		q:         stream.NewHandoff[[]byte](),
		headReady: make(chan struct{}),
		onDemand:  onDemand,
	}
}

// ID returns the correlation ID.
func (p *Proxy) ID() string {
	return p.id
}

// Next returns the next body chunk in arrival order. After the stream ends,
// buffered chunks are still returned, then every call reports Done. Use
// Status for the terminal status.
func (p *Proxy) Next(ctx context.Context) (stream.Result[[]byte], error) {
	if p.onDemand {
		p.requestMore()
	}
	res, err := p.q.Pull(ctx)
	if err == nil && !res.Done {
		p.taken()
	}
	return res, err
}

// Return abandons the stream: buffered chunks are dropped, the host is told
// to cancel and the proxy is unregistered. Calling it again, or after the
// stream ended, does nothing.
func (p *Proxy) Return() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.status = wire.StatusCancelled
	p.mu.Unlock()

	p.q.Discard()
	p.releaseHead()
	if err := p.client.enqueue(wire.NewCancel(p.id)); err != nil {
		p.logger.Debug("cancel not queued", zap.Error(err))
	}
	p.client.retire(p)
}

// Head waits for the head message. It returns nil when the stream produced
// a body or ended without one.
func (p *Proxy) Head(ctx context.Context) (*wire.Head, error) {
	select {
	case <-p.headReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.head == nil {
		return nil, nil
	}
	h := *p.head
	return &h, nil
}

// Status returns the terminal status and whether the stream has ended.
// A stream abandoned with Return reports StatusCancelled.
func (p *Proxy) Status() (status int, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.done
}

// Paused reports whether the proxy has asked the host to pause.
func (p *Proxy) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Buffered returns the number of chunks waiting to be read.
func (p *Proxy) Buffered() int {
	n, _ := p.q.Len()
	return n
}

// requestMore 按需模式下缓冲为空时申请一次拉取
func (p *Proxy) requestMore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || p.Buffered() > 0 {
		return
	}
	p.send(wire.NewPull(p.id))
}

// taken 消费一个值后检查低水位
func (p *Proxy) taken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered++
	if !p.paused || p.done {
		return
	}
	if p.Buffered() <= p.client.cfg.LowWaterMark {
		p.paused = false
		p.send(wire.NewResume(p.id))
	}
}

func (p *Proxy) onHead(head wire.Head) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.done:
		return types.ProtocolViolation(p.id, "head after end")
	case p.headSeen:
		return types.ProtocolViolation(p.id, "duplicate head")
	case p.bodySeen:
		return types.ProtocolViolation(p.id, "head after body")
	}
	p.headSeen = true
	p.head = &head
	p.releaseHead()
	return nil
}

func (p *Proxy) onBody(content []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return types.ProtocolViolation(p.id, "body after end")
	}
	if err := p.q.Push(content); err != nil {
		return types.ProtocolViolation(p.id, "body after end").WithCause(err)
	}
	p.bodySeen = true
	p.received++
	p.releaseHead()

	if hwm := p.client.cfg.HighWaterMark; hwm > 0 && !p.paused && p.Buffered() >= hwm {
		p.paused = true
		p.send(wire.NewPause(p.id))
	}
	return nil
}

func (p *Proxy) onEnd(status int) error {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return types.ProtocolViolation(p.id, "duplicate end")
	}
	p.done = true
	p.status = status
	p.mu.Unlock()

	p.q.Close()
	p.releaseHead()
	p.client.retire(p)
	return nil
}

// fail 在通道失效时终止代理，等待中的 Next 收到 err
func (p *Proxy) fail(status int, err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.status = status
	p.mu.Unlock()

	p.q.Fail(err)
	p.releaseHead()
}

func (p *Proxy) releaseHead() {
	p.headOnce.Do(func() { close(p.headReady) })
}

// send 调用方持有 mu，保证同一代理的控制消息按决策顺序入队
func (p *Proxy) send(msg *wire.Message) {
	if err := p.client.enqueue(msg); err != nil {
		p.logger.Debug("control message not queued", zap.Stringer("message", msg), zap.Error(err))
	}
}

// Release 由注册表在代理移除时调用，恰好一次
func (p *Proxy) Release() {
	p.mu.Lock()
	status, received := p.status, p.received
	p.mu.Unlock()

	telemetry.EndStreamSpan(p.span, status, wire.StatusText(status), received)
	p.client.metrics.RecordStreamFinished(metrics.SideConsumer, wire.StatusText(status))
	p.logger.Debug("proxy retired",
		zap.String("end_status", wire.StatusText(status)),
		zap.Int("received", received),
	)
}
