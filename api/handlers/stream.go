package handlers

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/api"
	"github.com/BaSui01/streambridge/consumer"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// =============================================================================
// 🌊 流网关 Handler
// =============================================================================

// Opener 打开远端流，*consumer.Client 实现它
type Opener interface {
	Open(ctx context.Context, req wire.Request) (*consumer.Proxy, error)
}

// StreamHandler 把远端流渲染为分块 HTTP 响应。客户端断开时流被取消
type StreamHandler struct {
	opener Opener
	logger *zap.Logger
}

// NewStreamHandler 创建流网关处理器
func NewStreamHandler(opener Opener, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		opener: opener,
		logger: logger.With(zap.String("handler", "stream")),
	}
}

// ServeHTTP 处理 GET/POST /v1/streams
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	p, err := h.opener.Open(ctx, req.WireRequest())
	if err != nil {
		WriteError(w, AsError(err), h.logger)
		return
	}
	// 流结束后 Return 是空操作；提前断开时通知 host 取消
	defer p.Return()

	log := h.logger.With(zap.String("stream_id", p.ID()), zap.String("url", req.URL))

	head, err := p.Head(ctx)
	if err != nil {
		log.Debug("client gone before head", zap.Error(err))
		return
	}
	if status, done := p.Status(); done && head == nil && p.Buffered() == 0 {
		if apiErr := EndStatusError(p.ID(), status); apiErr != nil {
			WriteError(w, apiErr, log)
			return
		}
	}

	hdr := w.Header()
	hdr.Set(api.HeaderStreamID, p.ID())
	hdr.Set("Content-Type", contentType(head))
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Cache-Control", "no-cache")
	// 不转发 Content-Length，分块编码才能携带状态 trailer
	hdr.Set("Trailer", api.TrailerStreamStatus)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	start := time.Now()
	summary := api.StreamSummary{ID: p.ID()}
	for {
		res, err := p.Next(ctx)
		if err != nil {
			log.Debug("stream interrupted", zap.Error(err))
			break
		}
		if res.Done {
			break
		}
		n, err := w.Write(res.Value)
		summary.Bytes += int64(n)
		summary.Chunks++
		if err != nil {
			log.Debug("client write failed", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			log.Debug("flush unsupported", zap.Error(err))
		}
	}

	status, done := p.Status()
	if !done {
		status = wire.StatusCancelled
	}
	summary.Status = status
	summary.Result = wire.StatusText(status)
	hdr.Set(api.TrailerStreamStatus, strconv.Itoa(status))

	log.Info("stream served",
		zap.String("result", summary.Result),
		zap.Int64("bytes", summary.Bytes),
		zap.Int("chunks", summary.Chunks),
		zap.Duration("duration", time.Since(start)),
	)
}

func (h *StreamHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*api.OpenStreamRequest, bool) {
	var req api.OpenStreamRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.URL = q.Get("url")
		req.Method = http.MethodGet
		if v := q.Get("on_demand"); v != "" {
			onDemand, err := strconv.ParseBool(v)
			if err != nil {
				WriteError(w, types.NewError(types.ErrInvalidRequest, "on_demand must be a boolean").WithCause(err), h.logger)
				return nil, false
			}
			req.OnDemand = onDemand
		}
	case http.MethodPost:
		if !ValidateContentType(w, r, h.logger) {
			return nil, false
		}
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return nil, false
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return nil, false
	}

	if err := req.Validate(); err != nil {
		WriteError(w, AsError(err), h.logger)
		return nil, false
	}
	return &req, true
}

// contentType 由 head 组装 Content-Type
func contentType(head *wire.Head) string {
	if head == nil || head.ContentType == "" {
		return "application/octet-stream"
	}
	if head.ContentCharset == "" {
		return head.ContentType
	}
	if ct := mime.FormatMediaType(head.ContentType, map[string]string{"charset": head.ContentCharset}); ct != "" {
		return ct
	}
	return head.ContentType
}
