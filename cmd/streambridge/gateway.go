package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/streambridge/api/handlers"
	"github.com/BaSui01/streambridge/config"
	"github.com/BaSui01/streambridge/consumer"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/server"
	"github.com/BaSui01/streambridge/transport"
)

// =============================================================================
// 🌊 gateway 角色
// =============================================================================

// errChannelClosed 通道被对端关闭，进程退出交给上层重启
var errChannelClosed = errors.New("bridge channel closed by host")

// gatewayServer 持有一个到 host 的通道，把 /v1/streams 请求映射为代理流
type gatewayServer struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	health  *handlers.HealthHandler

	connected atomic.Bool
}

func newGatewayServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *gatewayServer {
	return &gatewayServer{
		cfg:     cfg,
		logger:  logger.With(zap.String("role", "gateway")),
		metrics: collector,
		health:  handlers.NewHealthHandler(Version, logger),
	}
}

// Run 连接 host 并提供 HTTP 服务，直到 ctx 结束或通道断开
func (s *gatewayServer) Run(ctx context.Context) error {
	ch, closeFn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	client := consumer.NewClient(ch, consumer.ConfigFromBridge(s.cfg.Bridge),
		consumer.WithLogger(s.logger),
		consumer.WithMetrics(s.metrics),
	)
	s.connected.Store(true)
	s.health.RegisterCheck(handlers.NewFuncHealthCheck("bridge", func(context.Context) error {
		if !s.connected.Load() {
			return errChannelClosed
		}
		return nil
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Serve(gctx)
		s.connected.Store(false)
		switch {
		case gctx.Err() != nil:
			return nil
		case err == nil:
			return errChannelClosed
		default:
			return err
		}
	})

	srv := server.NewManager("gateway", s.routes(gctx, client), server.ConfigFromServer(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	g.Go(func() error {
		err := srv.Run(gctx)
		// 取消仍在进行的流
		_ = client.Close()
		return err
	})
	g.Go(func() error { return runMetricsServer(gctx, s.cfg.Server, s.logger) })

	return g.Wait()
}

func (s *gatewayServer) routes(ctx context.Context, opener handlers.Opener) http.Handler {
	mux := http.NewServeMux()
	s.health.RegisterRoutes(mux, BuildTime, GitCommit)

	streams := Chain(handlers.NewStreamHandler(opener, s.logger),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
	mux.Handle("/v1/streams", streams)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metrics),
	)
}

// dial 按配置打开 consumer 端通道，返回的 close 函数释放所有资源
func (s *gatewayServer) dial(ctx context.Context) (transport.Channel, func(), error) {
	tc := s.cfg.Transport
	switch tc.Kind {
	case config.TransportRedis:
		client := newRedisClient(tc.Redis)
		s.health.RegisterCheck(handlers.NewRedisHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		ch, err := transport.NewRedisChannel(ctx, client, transport.RedisChannelConfig{
			Prefix:  tc.Redis.Prefix,
			Session: tc.Redis.Session,
			Role:    transport.RoleConsumer,
		}, s.logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return ch, func() {
			_ = ch.Close()
			_ = client.Close()
		}, nil
	default:
		ch, err := transport.DialWebSocket(ctx, tc.URL, tc.ReadLimit, s.logger)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("connected to host", zap.String("url", tc.URL))
		return ch, func() { _ = ch.Close() }, nil
	}
}
