package transport

import (
	"context"
	"sync"

	"github.com/BaSui01/streambridge/wire"
)

// pipeEnd 内存管道的一端，消息同样经过编解码，行为与真实通道一致
type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe returns the two connected ends of an in-memory channel. buffer is
// the per-direction queue depth; closing either end closes both.
func NewPipe(buffer int) (Channel, Channel) {
	if buffer < 0 {
		buffer = 0
	}
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{in: ba, out: ab, done: done, once: once}
	b := &pipeEnd{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, msg *wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (*wire.Message, error) {
	select {
	case data := <-p.in:
		return wire.Decode(data)
	case <-p.done:
		// 关闭前已入队的消息仍可读出
		select {
		case data := <-p.in:
			return wire.Decode(data)
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
