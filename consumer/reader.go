package consumer

import (
	"context"
	"fmt"
	"io"

	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Reader exposes the body as an io.ReadCloser. Read returns io.EOF after a
// normal end and an error carrying the status otherwise. Close calls Return.
func (p *Proxy) Reader(ctx context.Context) io.ReadCloser {
	return &proxyReader{p: p, ctx: ctx}
}

type proxyReader struct {
	p       *Proxy
	ctx     context.Context
	pending []byte
}

func (r *proxyReader) Read(b []byte) (int, error) {
	for len(r.pending) == 0 {
		res, err := r.p.Next(r.ctx)
		if err != nil {
			return 0, err
		}
		if res.Done {
			return 0, endError(r.p)
		}
		r.pending = res.Value
	}
	n := copy(b, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *proxyReader) Close() error {
	r.p.Return()
	return nil
}

// endError 把终止状态转换为 Read 的返回错误
func endError(p *Proxy) error {
	status, _ := p.Status()
	switch status {
	case wire.StatusNormal:
		return io.EOF
	case wire.StatusProducerFailure:
		return types.NewError(types.ErrProducerFailure, "producer failed").WithStreamID(p.id)
	case wire.StatusNotFound:
		return types.NotFound(p.id)
	case wire.StatusUnavailable:
		return types.NewError(types.ErrServiceUnavailable, "host unavailable").WithStreamID(p.id).WithRetryable(true)
	case wire.StatusTimeout:
		return types.NewError(types.ErrTimeout, "stream idle timeout").WithStreamID(p.id)
	default:
		return types.NewError(types.ErrStreamClosed, fmt.Sprintf("stream ended: %s", wire.StatusText(status))).WithStreamID(p.id)
	}
}
