package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/eventqueue"
	"github.com/BaSui01/streambridge/host"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// =============================================================================
// 🔌 内置协议处理器
// =============================================================================
//
//	text:a,b,c                         逗号分隔的分块
//	ticker:?interval=1s&count=10       定时事件，count=0 表示不结束
//	tcp://host:port                    连接后转发读到的字节
//	udp://host:port                    监听并转发收到的数据报

const (
	defaultTickInterval = time.Second
	minTickInterval     = 10 * time.Millisecond
	defaultTickCount    = 10
	socketBufferSize    = 32 << 10
	dialTimeout         = 5 * time.Second
)

var textHead = wire.Head{ContentType: "text/plain", ContentCharset: "utf-8"}

// protocols 持有内置处理器共用的依赖
type protocols struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

func newProtocolMux(logger *zap.Logger, m *metrics.Collector) *host.Mux {
	p := &protocols{logger: logger, metrics: m}
	mux := host.NewMux()
	mux.HandleFunc("text", p.text)
	mux.HandleFunc("ticker", p.ticker)
	mux.HandleFunc("tcp", p.tcp)
	mux.HandleFunc("udp", p.udp)
	return mux
}

func (p *protocols) text(ctx context.Context, req *host.Request) (*host.Response, error) {
	raw := req.URL.Opaque
	if raw == "" {
		raw = strings.TrimPrefix(req.URL.Path, "/")
	}
	var chunks []string
	for _, part := range strings.Split(raw, ",") {
		s, err := url.PathUnescape(part)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "bad text chunk").WithCause(err)
		}
		chunks = append(chunks, s)
	}
	body := stream.Map(stream.FromSlice(chunks...), func(s string) ([]byte, error) {
		return []byte(s), nil
	})
	head := textHead
	return &host.Response{Head: &head, Body: body}, nil
}

func (p *protocols) ticker(ctx context.Context, req *host.Request) (*host.Response, error) {
	q := req.URL.Query()
	interval := defaultTickInterval
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "bad interval").WithCause(err)
		}
		interval = max(d, minTickInterval)
	}
	count := defaultTickCount
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, types.NewError(types.ErrInvalidRequest, "bad count").WithCause(err)
		}
		count = n
	}

	b, err := eventqueue.Listen(tickerSource(interval, count), p.logger,
		eventqueue.WithMetrics[[]byte](p.metrics))
	if err != nil {
		return nil, err
	}
	head := textHead
	return &host.Response{Head: &head, Body: b}, nil
}

// tickerSource 每个 interval 推送一行 "tick <n> <time>"，推送 count 次后正常结束
func tickerSource(interval time.Duration, count int) eventqueue.PushSource[[]byte] {
	return eventqueue.PushSourceFunc[[]byte](func(sink eventqueue.Sink[[]byte]) (func() error, error) {
		t := time.NewTicker(interval)
		done := make(chan struct{})
		var once sync.Once
		go func() {
			defer t.Stop()
			for n := 1; count == 0 || n <= count; n++ {
				select {
				case <-done:
					return
				case ts := <-t.C:
					sink.OnEvent([]byte(fmt.Sprintf("tick %d %s\n", n, ts.UTC().Format(time.RFC3339Nano))))
				}
			}
			sink.OnTerminate(nil)
		}()
		return func() error {
			once.Do(func() { close(done) })
			return nil
		}, nil
	})
}

func (p *protocols) tcp(ctx context.Context, req *host.Request) (*host.Response, error) {
	if req.URL.Host == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "tcp url needs host:port")
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", req.URL.Host)
	if err != nil {
		return nil, err
	}
	b, err := eventqueue.Listen[[]byte](eventqueue.NewConnSource(conn, socketBufferSize, p.logger), p.logger,
		eventqueue.WithMetrics[[]byte](p.metrics))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &host.Response{Head: &wire.Head{ContentType: "application/octet-stream"}, Body: b}, nil
}

func (p *protocols) udp(ctx context.Context, req *host.Request) (*host.Response, error) {
	if req.URL.Host == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "udp url needs host:port")
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", req.URL.Host)
	if err != nil {
		return nil, err
	}
	b, err := eventqueue.Listen[eventqueue.Datagram](eventqueue.NewPacketSource(pc, socketBufferSize, p.logger), p.logger,
		eventqueue.WithMetrics[eventqueue.Datagram](p.metrics))
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	p.logger.Info("udp stream listening", zap.String("stream_id", req.ID), zap.String("addr", pc.LocalAddr().String()))
	body := stream.Map[eventqueue.Datagram, []byte](b, func(d eventqueue.Datagram) ([]byte, error) {
		return d.Data, nil
	})
	return &host.Response{Head: &wire.Head{ContentType: "application/octet-stream"}, Body: body}, nil
}
