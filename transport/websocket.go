package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/internal/tlsutil"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Subprotocol is negotiated on every bridge WebSocket.
const Subprotocol = "streambridge.v1"

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit int64 = 1 << 20

// WebSocketChannel 基于 WebSocket 的消息通道，每条消息一个文本帧
type WebSocketChannel struct {
	conn    *websocket.Conn
	logger  *zap.Logger
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewWebSocketChannel wraps an established connection.
func NewWebSocketChannel(conn *websocket.Conn, readLimit int64, logger *zap.Logger) *WebSocketChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)
	return &WebSocketChannel{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_channel")),
	}
}

// DialWebSocket connects to a host bridge endpoint.
func DialWebSocket(ctx context.Context, url string, readLimit int64, logger *zap.Logger) (*WebSocketChannel, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:   tlsutil.WebSocketClient(),
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "websocket dial").
			WithCause(err).WithRetryable(true)
	}
	return NewWebSocketChannel(conn, readLimit, logger), nil
}

// AcceptWebSocket upgrades an inbound HTTP request into a channel.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, readLimit int64, logger *zap.Logger) (*WebSocketChannel, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "websocket accept").WithCause(err)
	}
	return NewWebSocketChannel(conn, readLimit, logger), nil
}

// Send 写入一帧，写操作串行化
func (c *WebSocketChannel) Send(ctx context.Context, msg *wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return types.NewError(types.ErrTransportFailure, "websocket write").
			WithStreamID(msg.RequestID).WithCause(err)
	}
	return nil
}

// Receive 读取下一帧。注意 ctx 取消会关闭底层连接
func (c *WebSocketChannel) Receive(ctx context.Context) (*wire.Message, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if c.isClosed() || isNormalClose(err) {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewError(types.ErrTransportFailure, "websocket read").WithCause(err)
	}
	if typ != websocket.MessageText {
		return nil, types.NewError(types.ErrInvalidMessage, fmt.Sprintf("unexpected frame type %v", typ))
	}
	return wire.Decode(data)
}

// Close 以正常关闭码结束连接
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !isNormalClose(err) {
		c.logger.Debug("websocket close", zap.Error(err))
	}
	return nil
}

func (c *WebSocketChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, ErrClosed)
}
