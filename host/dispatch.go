package host

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/transport"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Serve 是通道 host 端唯一的读取者，按到达顺序分发控制消息，
// 从而保证同一 ID 的控制消息有序。通道关闭时返回 nil。
func (c *Connection) Serve(ctx context.Context) error {
	for {
		msg, err := c.ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case types.IsCode(err, types.ErrInvalidMessage):
				c.metrics.RecordViolation(metrics.SideHost, string(types.ErrInvalidMessage))
				c.logger.Warn("dropping undecodable message", zap.Error(err))
				continue
			default:
				return err
			}
		}
		c.metrics.RecordMessage(metrics.SideHost, metrics.DirectionReceived, string(msg.Type))
		c.dispatch(ctx, msg)
	}
}

func (c *Connection) dispatch(ctx context.Context, msg *wire.Message) {
	var err error
	switch msg.Type {
	case wire.TypeCancel:
		err = c.Abort(msg.RequestID, wire.StatusCancelled)
	case wire.TypePause:
		err = c.Suspend(msg.RequestID)
	case wire.TypeResume:
		err = c.Resume(msg.RequestID)
	case wire.TypePull:
		err = c.Grant(msg.RequestID, 1)
	case wire.TypeRequest:
		c.handleRequest(ctx, msg)
		return
	default:
		err = types.ProtocolViolation(msg.RequestID, fmt.Sprintf("%s message sent to host", msg.Type))
	}
	if err != nil {
		c.reject(msg, err)
	}
}

// reject 记录无法处理的消息；已退役 ID 的消息属于正常竞态，只记 debug
func (c *Connection) reject(msg *wire.Message, err error) {
	code := types.GetErrorCode(err)
	if code == types.ErrNotFound && c.reg.Retired(msg.RequestID) {
		code = types.ErrLateMessage
	}
	c.metrics.RecordViolation(metrics.SideHost, string(code))

	fields := []zap.Field{zap.String("stream_id", msg.RequestID), zap.String("type", string(msg.Type))}
	if code == types.ErrLateMessage {
		c.logger.Debug("late control message", fields...)
		return
	}
	c.logger.Warn("control message rejected", append(fields, zap.Error(err))...)
}

// handleRequest 同步登记流再异步调用处理器，保证紧随其后的 cancel/pause
// 能找到该流
func (c *Connection) handleRequest(ctx context.Context, msg *wire.Message) {
	id := msg.RequestID
	if c.mux == nil {
		c.endUnregistered(id, wire.StatusNotFound)
		return
	}
	handler, u, err := c.mux.Match(msg.Request.URL)
	if err != nil {
		c.logger.Info("request not routable", zap.String("stream_id", id), zap.String("url", msg.Request.URL), zap.Error(err))
		c.endUnregistered(id, wire.StatusNotFound)
		return
	}

	s, err := c.register(ctx, id, startOptions{onDemand: msg.Request.OnDemand, url: msg.Request.URL})
	if err != nil {
		c.reject(msg, err)
		return
	}

	req := &Request{ID: id, URL: u, Method: msg.Request.Method, Headers: msg.Request.Headers}
	go c.invoke(s, handler, req)
}

func (c *Connection) invoke(s *hostStream, handler Handler, req *Request) {
	resp, err := c.callHandler(s, handler, req)

	s.mu.Lock()
	if s.status.Terminal() {
		// 处理器返回前已被取消
		s.mu.Unlock()
		if resp != nil {
			closeSource(resp.Body, s.logger)
		}
		return
	}
	var finished bool
	switch {
	case err != nil:
		s.logger.Warn("handler failed", zap.Error(err))
		finished = s.finishLocked(stream.StatusAborted, wire.StatusProducerFailure)
	case resp == nil || resp.Body == nil:
		// 没有 body：只发送 head（若有）后正常结束
		if resp != nil && resp.Head != nil {
			_ = s.sendLocked(wire.NewHead(s.id, *resp.Head))
		}
		finished = s.finishLocked(stream.StatusClosed, wire.StatusNormal)
	default:
		finished = s.attachLocked(resp.Head, resp.Body)
	}
	s.mu.Unlock()
	if finished {
		c.retire(s)
	}
}

func (c *Connection) callHandler(s *hostStream, handler Handler, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			resp, err = nil, fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.ServeStream(s.ctx, req)
}

// endUnregistered 对从未登记的 ID 直接回复 end
func (c *Connection) endUnregistered(id string, status int) {
	if err := c.send(wire.NewEnd(id, status)); err != nil {
		c.logger.Debug("end not delivered", zap.String("stream_id", id), zap.Error(err))
	}
}
