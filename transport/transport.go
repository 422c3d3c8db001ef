package transport

import (
	"context"
	"errors"

	"github.com/BaSui01/streambridge/wire"
)

// Channel 跨上下文消息通道，投递单条序列化消息
type Channel interface {
	// Send 发送一条消息（并发安全）
	Send(ctx context.Context, msg *wire.Message) error
	// Receive 接收下一条消息（阻塞），通道关闭后返回 ErrClosed
	Receive(ctx context.Context) (*wire.Message, error)
	// Close 关闭通道，可重复调用
	Close() error
}

// ErrClosed is returned by Send and Receive once the channel is closed.
var ErrClosed = errors.New("transport: channel closed")

// Role 决定通道端的收发方向
type Role string

const (
	RoleHost     Role = "host"
	RoleConsumer Role = "consumer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleConsumer
}
