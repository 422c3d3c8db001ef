package api

import (
	"net/url"

	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// =============================================================================
// 流网关类型
// =============================================================================

// Gateway 响应头与 trailer
const (
	// HeaderStreamID 携带本次流的关联 ID
	HeaderStreamID = "X-Stream-ID"
	// TrailerStreamStatus 流结束后的终止状态码
	TrailerStreamStatus = "X-Stream-Status"
)

// OpenStreamRequest 打开流的请求（POST /v1/streams 的 JSON body，
// 或 GET /v1/streams 的查询参数）
// @Description 打开流请求结构
type OpenStreamRequest struct {
	// 目标 URL，scheme 决定 host 端的处理器
	URL string `json:"url" example:"text:hello"`
	// 请求方法，透传给处理器
	Method string `json:"method,omitempty" example:"GET"`
	// 请求头，透传给处理器
	Headers map[string]string `json:"headers,omitempty"`
	// 按需模式：每次读取才向 host 申请一个分块
	OnDemand bool `json:"on_demand,omitempty"`
}

// Validate checks the request.
func (r *OpenStreamRequest) Validate() error {
	if r.URL == "" {
		return types.NewError(types.ErrInvalidRequest, "url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" {
		return types.NewError(types.ErrInvalidRequest, "url must be absolute").WithCause(err)
	}
	return nil
}

// WireRequest converts to the bridge request message payload.
func (r *OpenStreamRequest) WireRequest() wire.Request {
	return wire.Request{
		URL:      r.URL,
		Method:   r.Method,
		Headers:  r.Headers,
		OnDemand: r.OnDemand,
	}
}

// StreamSummary 流结束后的摘要（用于日志与调试端点）
// @Description 流摘要
type StreamSummary struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Result string `json:"result"`
	Bytes  int64  `json:"bytes"`
	Chunks int    `json:"chunks"`
}
