package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/streambridge/api/handlers"
	"github.com/BaSui01/streambridge/config"
	"github.com/BaSui01/streambridge/host"
	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/pool"
	"github.com/BaSui01/streambridge/internal/server"
	"github.com/BaSui01/streambridge/internal/tlsutil"
	"github.com/BaSui01/streambridge/transport"
)

// =============================================================================
// 🖥️ host 角色
// =============================================================================

// hostServer 为每个通道创建一个 host.Connection，所有连接共享 pump 池与协议表
type hostServer struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	mux     *host.Mux
	health  *handlers.HealthHandler

	pool *pool.GoroutinePool

	mu     sync.Mutex
	active map[*host.Connection]struct{}
	conns  sync.WaitGroup
}

func newHostServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *hostServer {
	s := &hostServer{
		cfg:     cfg,
		logger:  logger.With(zap.String("role", "host")),
		metrics: collector,
		mux:     newProtocolMux(logger, collector),
		health:  handlers.NewHealthHandler(Version, logger),
		active:  make(map[*host.Connection]struct{}),
	}
	if cfg.Bridge.MaxPumps > 0 {
		s.pool = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
			MaxWorkers: cfg.Bridge.MaxPumps,
			QueueSize:  cfg.Bridge.PumpQueue,
		}, logger)
	}
	return s
}

// Run 运行 host 直到 ctx 结束
func (s *hostServer) Run(ctx context.Context) error {
	if s.pool != nil {
		defer s.pool.Close()
	}
	g, gctx := errgroup.WithContext(ctx)

	httpMux := http.NewServeMux()
	s.health.RegisterRoutes(httpMux, BuildTime, GitCommit)

	switch s.cfg.Transport.Kind {
	case config.TransportRedis:
		client := newRedisClient(s.cfg.Transport.Redis)
		defer client.Close()
		s.health.RegisterCheck(handlers.NewRedisHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		g.Go(func() error { return s.serveRedis(gctx, client) })
	default:
		httpMux.HandleFunc(s.cfg.Transport.Path, func(w http.ResponseWriter, r *http.Request) {
			s.serveWebSocket(gctx, w, r)
		})
	}

	s.health.RegisterCheck(handlers.NewFuncHealthCheck("pump_pool", func(context.Context) error {
		if s.pool == nil {
			return nil
		}
		st := s.pool.Stats()
		if st.Queued >= s.cfg.Bridge.PumpQueue && s.cfg.Bridge.PumpQueue > 0 {
			return errors.New("pump queue full")
		}
		return nil
	}))

	handler := Chain(httpMux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metrics),
	)
	httpServer := server.NewManager("host", handler, server.ConfigFromServer(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	httpServer.RegisterOnShutdown(s.closeConnections)
	g.Go(func() error { return httpServer.Run(gctx) })
	g.Go(func() error { return runMetricsServer(gctx, s.cfg.Server, s.logger) })

	err := g.Wait()
	s.closeConnections()
	s.conns.Wait()
	return err
}

// serveWebSocket 升级请求并在该通道上运行一个 host.Connection
func (s *hostServer) serveWebSocket(base context.Context, w http.ResponseWriter, r *http.Request) {
	ch, err := transport.AcceptWebSocket(w, r, s.cfg.Transport.ReadLimit, s.logger)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ch.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(base, cancel)
	defer stop()

	s.logger.Info("consumer connected", zap.String("remote_addr", r.RemoteAddr))
	if err := s.serveChannel(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("consumer connection failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
	}
	s.logger.Info("consumer disconnected", zap.String("remote_addr", r.RemoteAddr))
}

func (s *hostServer) serveRedis(ctx context.Context, client redis.UniversalClient) error {
	rc := s.cfg.Transport.Redis
	ch, err := transport.NewRedisChannel(ctx, client, transport.RedisChannelConfig{
		Prefix:  rc.Prefix,
		Session: rc.Session,
		Role:    transport.RoleHost,
	}, s.logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	err = s.serveChannel(ctx, ch)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveChannel 运行一个 Connection 直到通道关闭或 ctx 结束，退出时以 unavailable 结束所有流
func (s *hostServer) serveChannel(ctx context.Context, ch transport.Channel) error {
	opts := []host.Option{
		host.WithLogger(s.logger),
		host.WithMetrics(s.metrics),
		host.WithMux(s.mux),
	}
	if s.pool != nil {
		opts = append(opts, host.WithPool(s.pool))
	}
	conn := host.NewConnection(ch, host.ConfigFromBridge(s.cfg.Bridge), opts...)

	s.mu.Lock()
	s.active[conn] = struct{}{}
	s.conns.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, conn)
		s.mu.Unlock()
		s.conns.Done()
	}()

	err := conn.Serve(ctx)
	_ = conn.Close()
	return err
}

// closeConnections 在 HTTP 服务器关闭时结束被劫持的 WebSocket 连接
func (s *hostServer) closeConnections() {
	s.mu.Lock()
	conns := make([]*host.Connection, 0, len(s.active))
	for c := range s.active {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// =============================================================================
// 🔧 共用组件
// =============================================================================

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.RedisTLSConfig(cfg.Addr)
	}
	return redis.NewClient(opts)
}

// runMetricsServer 在独立端口暴露 /metrics，端口为 0 时不启动
func runMetricsServer(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) error {
	if cfg.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m := server.NewManager("metrics", mux, server.ConfigFromServer(cfg, cfg.MetricsPort), logger)
	return m.Run(ctx)
}
