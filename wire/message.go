package wire

import "fmt"

// Type 消息类型标签
type Type string

const (
	TypeHead    Type = "head"
	TypeBody    Type = "body"
	TypeEnd     Type = "end"
	TypePull    Type = "pull"
	TypeCancel  Type = "cancel"
	TypePause   Type = "pause"
	TypeResume  Type = "resume"
	TypeRequest Type = "request"
)

// IsControl reports whether messages of this type flow consumer -> host.
func (t Type) IsControl() bool {
	switch t {
	case TypePull, TypeCancel, TypePause, TypeResume, TypeRequest:
		return true
	}
	return false
}

// IsData reports whether messages of this type flow host -> consumer.
func (t Type) IsData() bool {
	switch t {
	case TypeHead, TypeBody, TypeEnd:
		return true
	}
	return false
}

// Terminal status codes carried by end messages.
const (
	StatusNormal          = 0
	StatusCancelled       = 1
	StatusProducerFailure = 2
	StatusNotFound        = 3
	StatusUnavailable     = 4
	StatusTimeout         = 5
)

// StatusText returns a short label for an end status.
func StatusText(status int) string {
	switch status {
	case StatusNormal:
		return "normal"
	case StatusCancelled:
		return "cancelled"
	case StatusProducerFailure:
		return "producer_failure"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status_%d", status)
	}
}

// Head 描述流的元数据，每个流最多发送一次，且先于任何 body
type Head struct {
	ContentType    string `json:"contentType,omitempty"`
	ContentLength  *int64 `json:"contentLength,omitempty"`
	ContentCharset string `json:"contentCharset,omitempty"`
}

// Request 由 consumer 发起，请求 host 调用协议处理器
type Request struct {
	URL      string            `json:"url"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	OnDemand bool              `json:"onDemand,omitempty"`
}

// Message is one correlation-tagged record on the channel. Only the fields
// belonging to Type are meaningful; the codec emits exactly those.
type Message struct {
	Type      Type
	RequestID string

	Head    Head
	Content []byte
	Status  int
	Request Request
}

// NewHead builds a head message.
func NewHead(id string, head Head) *Message {
	return &Message{Type: TypeHead, RequestID: id, Head: head}
}

// NewBody builds a body message.
func NewBody(id string, content []byte) *Message {
	return &Message{Type: TypeBody, RequestID: id, Content: content}
}

// NewEnd builds an end message.
func NewEnd(id string, status int) *Message {
	return &Message{Type: TypeEnd, RequestID: id, Status: status}
}

// NewPull builds a pull message.
func NewPull(id string) *Message {
	return &Message{Type: TypePull, RequestID: id}
}

// NewCancel builds a cancel message.
func NewCancel(id string) *Message {
	return &Message{Type: TypeCancel, RequestID: id}
}

// NewPause builds a pause message.
func NewPause(id string) *Message {
	return &Message{Type: TypePause, RequestID: id}
}

// NewResume builds a resume message.
func NewResume(id string) *Message {
	return &Message{Type: TypeResume, RequestID: id}
}

// NewRequest builds a request message.
func NewRequest(id string, req Request) *Message {
	return &Message{Type: TypeRequest, RequestID: id, Request: req}
}

// Validate checks the message against the schema.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("nil message")
	}
	if m.RequestID == "" {
		return fmt.Errorf("%s message without requestId", m.Type)
	}
	switch m.Type {
	case TypeHead:
		if m.Head.ContentLength != nil && *m.Head.ContentLength < 0 {
			return fmt.Errorf("negative contentLength %d", *m.Head.ContentLength)
		}
	case TypeEnd:
		if m.Status < 0 {
			return fmt.Errorf("negative end status %d", m.Status)
		}
	case TypeRequest:
		if m.Request.URL == "" {
			return fmt.Errorf("request without url")
		}
	case TypeBody, TypePull, TypeCancel, TypePause, TypeResume:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// String 用于日志输出，不包含 body 内容
func (m *Message) String() string {
	switch m.Type {
	case TypeBody:
		return fmt.Sprintf("body(%s, %d bytes)", m.RequestID, len(m.Content))
	case TypeEnd:
		return fmt.Sprintf("end(%s, %d)", m.RequestID, m.Status)
	default:
		return fmt.Sprintf("%s(%s)", m.Type, m.RequestID)
	}
}
