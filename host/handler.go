package host

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/streambridge/stream"
	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

// Request 交给协议处理器的请求
type Request struct {
	ID      string
	URL     *url.URL
	Method  string
	Headers map[string]string
}

// Response 处理器的响应：可选的 head 与 body 数据源
type Response struct {
	Head *wire.Head
	Body stream.Source[[]byte]
}

// Handler 自定义协议处理器
type Handler interface {
	ServeStream(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// ServeStream calls f.
func (f HandlerFunc) ServeStream(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Mux 按 URL scheme 路由请求
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Handle registers h for scheme, replacing any previous handler.
func (m *Mux) Handle(scheme string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.ToLower(scheme)] = h
}

// HandleFunc registers fn for scheme.
func (m *Mux) HandleFunc(scheme string, fn func(ctx context.Context, req *Request) (*Response, error)) {
	m.Handle(scheme, HandlerFunc(fn))
}

// Schemes returns the registered schemes in sorted order.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for s := range m.handlers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Match parses rawURL and returns the handler for its scheme. Unknown
// schemes fail with NOT_FOUND, unparsable URLs with INVALID_REQUEST.
func (m *Mux) Match(rawURL string) (Handler, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid url %q", rawURL)).WithCause(err)
	}
	m.mu.RLock()
	h, ok := m.handlers[strings.ToLower(u.Scheme)]
	m.mu.RUnlock()
	if !ok {
		return nil, u, types.NewError(types.ErrNotFound, fmt.Sprintf("no handler for scheme %q", u.Scheme))
	}
	return h, u, nil
}
