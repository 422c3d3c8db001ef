package host

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/streambridge/internal/metrics"
	"github.com/BaSui01/streambridge/internal/telemetry"
	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/wire"
)

// hostStream 是 host 端的单个流。mu 保护状态、信用与数据源；
// body 与 end 都在 mu 下发送，因此 end 一定是该 ID 的最后一条消息。
type hostStream struct {
	id     string
	conn   *Connection
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	mu       sync.Mutex
	status   stream.Status
	source   stream.Source[[]byte]
	pumping  bool
	onDemand bool
	credits  int
	limiter  *rate.Limiter

	pauseSeq  uint64
	idleTimer *time.Timer

	endStatus int
	chunks    int
}

// attachLocked 绑定数据源并可选地先发送 head
func (s *hostStream) attachLocked(head *wire.Head, source stream.Source[[]byte]) bool {
	if s.status.Terminal() {
		// 注册后、绑定前已被中止，Release 不会再关闭它
		closeSource(source, s.logger)
		return false
	}
	s.source = source
	if head != nil {
		if err := s.sendLocked(wire.NewHead(s.id, *head)); err != nil {
			return s.finishLocked(stream.StatusAborted, wire.StatusUnavailable)
		}
	}
	s.schedulePumpLocked()
	return false
}

// canFetchLocked 判断是否可以开始下一次拉取
func (s *hostStream) canFetchLocked() bool {
	if s.status != stream.StatusActive || s.source == nil {
		return false
	}
	return !s.onDemand || s.credits > 0
}

// schedulePumpLocked 在没有拉取进行中时启动 pump
func (s *hostStream) schedulePumpLocked() {
	if s.pumping || !s.canFetchLocked() {
		return
	}
	s.pumping = true

	if s.conn.pool == nil {
		go func() { _ = s.pump(s.ctx) }()
		return
	}
	if err := s.conn.pool.Submit(s.ctx, s.pump); err != nil {
		s.pumping = false
		s.logger.Warn("pump rejected", zap.Error(err))
		// 调用方持有 mu，退役在锁外进行
		if s.finishLocked(stream.StatusAborted, wire.StatusUnavailable) {
			go s.conn.retire(s)
		}
	}
}

// pump 顺序拉取数据源，任一时刻最多一个拉取在途
func (s *hostStream) pump(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.canFetchLocked() {
			s.pumping = false
			s.mu.Unlock()
			return nil
		}
		if limiter := s.limiter; limiter != nil {
			s.mu.Unlock()
			err := limiter.Wait(ctx)
			s.mu.Lock()
			// 限速等待期间可能已暂停或中止，此时不得开始新的拉取
			if err != nil || !s.canFetchLocked() {
				s.pumping = false
				s.mu.Unlock()
				return nil
			}
		}
		if s.onDemand {
			s.credits--
		}
		source := s.source
		s.mu.Unlock()

		start := time.Now()
		value, ok, err := source.Pull(ctx)
		s.conn.metrics.RecordFetch(time.Since(start))

		s.mu.Lock()
		if s.status.Terminal() {
			// 拉取期间已中止，丢弃结果
			s.pumping = false
			s.mu.Unlock()
			return nil
		}
		var finished bool
		switch {
		case err != nil:
			s.logger.Warn("producer failed", zap.Error(err))
			finished = s.finishLocked(stream.StatusAborted, wire.StatusProducerFailure)
		case !ok:
			finished = s.finishLocked(stream.StatusClosed, wire.StatusNormal)
		default:
			// PAUSED 期间完成的拉取照常投递
			if sendErr := s.sendLocked(wire.NewBody(s.id, value)); sendErr != nil {
				finished = s.finishLocked(stream.StatusAborted, wire.StatusUnavailable)
			} else {
				s.chunks++
			}
		}
		if finished {
			s.pumping = false
			s.mu.Unlock()
			s.conn.retire(s)
			return nil
		}
		s.mu.Unlock()
	}
}

// suspendLocked ACTIVE -> PAUSED，并启动空闲计时
func (s *hostStream) suspendLocked() {
	if s.status != stream.StatusActive {
		return
	}
	s.status = stream.StatusPaused
	s.pauseSeq++
	if timeout := s.conn.cfg.IdleTimeout; timeout > 0 {
		seq := s.pauseSeq
		s.idleTimer = time.AfterFunc(timeout, func() { s.idleExpired(seq) })
	}
}

// resumeLocked PAUSED -> ACTIVE；已是 ACTIVE 时为空操作
func (s *hostStream) resumeLocked() {
	if s.status != stream.StatusPaused {
		return
	}
	s.status = stream.StatusActive
	s.stopIdleTimerLocked()
	s.schedulePumpLocked()
}

func (s *hostStream) idleExpired(seq uint64) {
	s.mu.Lock()
	if s.status != stream.StatusPaused || s.pauseSeq != seq {
		s.mu.Unlock()
		return
	}
	s.logger.Info("paused stream idle, aborting", zap.Duration("idle_timeout", s.conn.cfg.IdleTimeout))
	finished := s.finishLocked(stream.StatusAborted, wire.StatusTimeout)
	s.mu.Unlock()
	if finished {
		s.conn.retire(s)
	}
}

func (s *hostStream) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// finishLocked 进入终止状态并发送 end。返回 true 表示本次调用完成了转换，
// 调用方须在释放 mu 后调用 conn.retire。
func (s *hostStream) finishLocked(final stream.Status, status int) bool {
	if s.status.Terminal() {
		return false
	}
	s.status = final
	s.endStatus = status
	s.stopIdleTimerLocked()
	if err := s.sendLocked(wire.NewEnd(s.id, status)); err != nil {
		s.logger.Debug("end not delivered", zap.Error(err))
	}
	// 取消在途拉取
	s.cancel()
	return true
}

func (s *hostStream) sendLocked(msg *wire.Message) error {
	if err := s.conn.send(msg); err != nil {
		s.logger.Warn("send failed", zap.Stringer("message", msg), zap.Error(err))
		return err
	}
	return nil
}

// Release 由注册表在条目移除时调用，恰好一次
func (s *hostStream) Release() {
	s.mu.Lock()
	source := s.source
	s.source = nil
	endStatus, chunks := s.endStatus, s.chunks
	s.mu.Unlock()

	s.cancel()
	closeSource(source, s.logger)
	telemetry.EndStreamSpan(s.span, endStatus, wire.StatusText(endStatus), chunks)
	s.conn.metrics.RecordStreamFinished(metrics.SideHost, wire.StatusText(endStatus))
	s.logger.Debug("stream retired",
		zap.String("end_status", wire.StatusText(endStatus)),
		zap.Int("chunks", chunks),
	)
}

func closeSource(source stream.Source[[]byte], logger *zap.Logger) {
	if closer, ok := source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Debug("source close", zap.Error(err))
		}
	}
}
