package eventqueue

import (
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/internal/pool"
)

// Datagram 一个收到的数据报
type Datagram struct {
	Data []byte
	Addr net.Addr
}

// stopper 关闭底层 socket 恰好一次，并记录是否由 stop 触发
type stopper struct {
	once    sync.Once
	mu      sync.Mutex
	stopped bool
	closeFn func() error
	err     error
}

func (s *stopper) stop() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.err = s.closeFn()
	})
	return s.err
}

func (s *stopper) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// terminal 把读循环的退出错误转换为 OnTerminate 的参数
func (s *stopper) terminal(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || s.wasStopped() {
		return nil
	}
	return err
}

// ListenerSource 把监听器接受的连接作为事件推送
type ListenerSource struct {
	ln     net.Listener
	logger *zap.Logger
}

// NewListenerSource wraps ln. The listener is closed when the subscription
// stops.
func NewListenerSource(ln net.Listener, logger *zap.Logger) *ListenerSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenerSource{ln: ln, logger: logger.With(zap.String("component", "listener_source"))}
}

// Subscribe implements PushSource.
func (s *ListenerSource) Subscribe(sink Sink[net.Conn]) (func() error, error) {
	st := &stopper{closeFn: s.ln.Close}
	go func() {
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				s.logger.Debug("accept loop finished", zap.Error(err))
				sink.OnTerminate(st.terminal(err))
				return
			}
			sink.OnEvent(conn)
		}
	}()
	return st.stop, nil
}

// PacketSource 把收到的数据报作为事件推送
type PacketSource struct {
	pc      net.PacketConn
	buffers *pool.BufferPool
	logger  *zap.Logger
}

// NewPacketSource wraps pc, reading into buffers of bufferSize bytes.
func NewPacketSource(pc net.PacketConn, bufferSize int, logger *zap.Logger) *PacketSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PacketSource{
		pc:      pc,
		buffers: pool.NewBufferPool(bufferSize),
		logger:  logger.With(zap.String("component", "packet_source")),
	}
}

// Subscribe implements PushSource.
func (s *PacketSource) Subscribe(sink Sink[Datagram]) (func() error, error) {
	st := &stopper{closeFn: s.pc.Close}
	go func() {
		for {
			buf := s.buffers.Get()
			n, addr, err := s.pc.ReadFrom(*buf)
			if err != nil {
				s.buffers.Put(buf)
				s.logger.Debug("read loop finished", zap.Error(err))
				sink.OnTerminate(st.terminal(err))
				return
			}
			data := make([]byte, n)
			copy(data, (*buf)[:n])
			s.buffers.Put(buf)
			sink.OnEvent(Datagram{Data: data, Addr: addr})
		}
	}()
	return st.stop, nil
}

// ConnSource 把连接上读到的字节块作为事件推送，对端关闭时正常结束
type ConnSource struct {
	conn    net.Conn
	buffers *pool.BufferPool
	logger  *zap.Logger
}

// NewConnSource wraps conn, reading chunks of at most bufferSize bytes.
func NewConnSource(conn net.Conn, bufferSize int, logger *zap.Logger) *ConnSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnSource{
		conn:    conn,
		buffers: pool.NewBufferPool(bufferSize),
		logger:  logger.With(zap.String("component", "conn_source")),
	}
}

// Subscribe implements PushSource.
func (s *ConnSource) Subscribe(sink Sink[[]byte]) (func() error, error) {
	st := &stopper{closeFn: s.conn.Close}
	go func() {
		for {
			buf := s.buffers.Get()
			n, err := s.conn.Read(*buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, (*buf)[:n])
				sink.OnEvent(chunk)
			}
			s.buffers.Put(buf)
			if err != nil {
				s.logger.Debug("read loop finished", zap.Error(err))
				sink.OnTerminate(st.terminal(err))
				return
			}
		}
	}()
	return st.stop, nil
}
